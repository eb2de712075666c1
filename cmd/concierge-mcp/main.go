package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/kjd1374/shopping-sub000/models"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	apiURL := os.Getenv("CONCIERGE_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("CONCIERGE_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "CONCIERGE_API_KEY is required")
		os.Exit(1)
	}

	api := &apiClient{
		base:   strings.TrimRight(apiURL, "/"),
		key:    apiKey,
		client: &http.Client{Timeout: 10 * time.Minute},
	}

	s := server.NewMCPServer(
		"concierge",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	previewTool := mcp.NewTool("preview_links",
		mcp.WithDescription("Preview Korean shopping product links: title, price, original price and images for each URL. Failed links come back with an error entry instead of failing the whole call."),
		mcp.WithArray("urls",
			mcp.Required(),
			mcp.Description("Product page URLs (1 to 20)"),
		),
		mcp.WithNumber("max_age",
			mcp.Description("Serve a cached preview younger than this many milliseconds (default: 0, no cache)"),
		),
	)
	s.AddTool(previewTool, handlePreview(api))

	rankingTool := mcp.NewTool("get_ranking",
		mcp.WithDescription("List the current best-seller ranking for one category. An empty category is ingested on demand first."),
		mcp.WithString("category",
			mcp.Required(),
			mcp.Description("Category key, for example 'skincare' or 'makeup'"),
		),
	)
	s.AddTool(rankingTool, handleGetRanking(api))

	refreshTool := mcp.NewTool("refresh_rankings",
		mcp.WithDescription("Re-ingest best-seller rankings and wait for the run report."),
		mcp.WithArray("categories",
			mcp.Description("Category keys to refresh (default: whole catalog)"),
		),
	)
	s.AddTool(refreshTool, handleRefresh(api))

	parseTool := mcp.NewTool("parse_product",
		mcp.WithDescription("Normalize one product page into a purchase-ready record (name, brand, price, original price, images, category, shipping weight, options, description) using the configured model."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Product detail page URL"),
		),
		mcp.WithString("category",
			mcp.Description("Optional category hint used for weight estimation"),
		),
	)
	s.AddTool(parseTool, handleParse(api))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// apiClient calls the concierge HTTP API.
type apiClient struct {
	base   string
	key    string
	client *http.Client
}

// do sends a request and returns the response body. Non-2xx responses are
// returned too; callers read the error envelope from the body.
func (a *apiClient) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.base+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-API-Key", a.key)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

func errorText(fallback string, detail *models.ErrorDetail) string {
	if detail == nil {
		return fallback
	}
	return fmt.Sprintf("[%s] %s", detail.Code, detail.Message)
}

func formatPrice(v float64) string {
	if v <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.0f KRW", v)
}

func handlePreview(api *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		urls, err := request.RequireStringSlice("urls")
		if err != nil {
			return mcp.NewToolResultError("urls is required and must be an array of strings"), nil
		}

		payload := models.PreviewRequest{URLs: urls, MaxAge: request.GetInt("max_age", 0)}
		body, err := api.do(ctx, http.MethodPost, "/api/v1/preview", payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("preview request failed: %v", err)), nil
		}

		var resp struct {
			models.PreviewResponse
			Error *models.ErrorDetail `json:"error"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse preview response: %v", err)), nil
		}
		if resp.Error != nil {
			return mcp.NewToolResultError(errorText("preview failed", resp.Error)), nil
		}

		var sb strings.Builder
		for i, r := range resp.Results {
			if r.Error != nil {
				sb.WriteString(fmt.Sprintf("--- [%d] FAILED: %s ---\n%s\n\n", i+1, errorText("", r.Error), r.URL))
				continue
			}
			sb.WriteString(fmt.Sprintf("--- [%d] %s ---\n", i+1, r.Title))
			if r.Brand != "" {
				sb.WriteString("Brand: " + r.Brand + "\n")
			}
			sb.WriteString(fmt.Sprintf("Price: %s (original %s)\n", formatPrice(r.Price), formatPrice(r.OriginalPrice)))
			if len(r.Images) > 0 {
				sb.WriteString("Image: " + r.Images[0] + "\n")
			}
			sb.WriteString(r.URL + "\n\n")
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleGetRanking(api *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		category, err := request.RequireString("category")
		if err != nil {
			return mcp.NewToolResultError("category is required"), nil
		}

		body, err := api.do(ctx, http.MethodGet, "/api/v1/rankings/"+url.PathEscape(category), nil)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("ranking request failed: %v", err)), nil
		}

		var resp models.RankingResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse ranking response: %v", err)), nil
		}
		if !resp.Success {
			return mcp.NewToolResultError(errorText("ranking unavailable", resp.Error)), nil
		}

		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("%s: %d listings", resp.ProductType, len(resp.Listings)))
		if resp.Fetched {
			sb.WriteString(" (freshly ingested)")
		}
		sb.WriteString("\n\n")
		for _, l := range resp.Listings {
			if l.Brand != "" {
				sb.WriteString(fmt.Sprintf("%d. [%s] %s\n   %s\n", l.Rank, l.Brand, l.Title, l.OriginURL))
			} else {
				sb.WriteString(fmt.Sprintf("%d. %s\n   %s\n", l.Rank, l.Title, l.OriginURL))
			}
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleRefresh(api *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		payload := models.RefreshRequest{Categories: request.GetStringSlice("categories", nil)}

		body, err := api.do(ctx, http.MethodPost, "/api/v1/rankings/refresh?wait=true", payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("refresh request failed: %v", err)), nil
		}

		var resp models.RefreshResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse refresh response: %v", err)), nil
		}
		if resp.Report == nil {
			return mcp.NewToolResultError(errorText("refresh failed", resp.Error)), nil
		}

		r := resp.Report
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("Run %s: %d/%d categories succeeded\n\n", r.RunID, r.Succeeded(), len(r.Categories)))
		for _, c := range r.Categories {
			if c.State == models.StateDone {
				sb.WriteString(fmt.Sprintf("- %s: %d listings\n", c.ProductType, c.Listings))
			} else {
				sb.WriteString(fmt.Sprintf("- %s: FAILED in %s: %s\n", c.ProductType, c.FailedIn, errorText("", c.Error)))
			}
		}
		if r.Error != nil {
			sb.WriteString("\nRun error: " + errorText("", r.Error) + "\n")
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleParse(api *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		target, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		payload := models.ParseRequest{URL: target, Category: request.GetString("category", "")}
		body, err := api.do(ctx, http.MethodPost, "/api/v1/products/parse", payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("parse request failed: %v", err)), nil
		}

		var resp models.ParseResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if !resp.Success || resp.Product == nil {
			return mcp.NewToolResultError(errorText("product parsing failed", resp.Error)), nil
		}

		pretty, err := json.MarshalIndent(resp.Product, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to format product: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Source: %s\n\n%s", target, pretty)), nil
	}
}
