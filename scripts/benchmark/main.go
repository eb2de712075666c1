package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/kjd1374/shopping-sub000/models"
)

// CLI flags
var (
	apiURL  = flag.String("api-url", "http://localhost:8080", "Concierge API base URL")
	apiKey  = flag.String("api-key", "", "API key for authenticated requests")
	runs    = flag.Int("runs", 3, "Number of preview calls per URL set")
	urlFile = flag.String("urls", "", "File with one product URL per line (default: built-in set)")
	output  = flag.String("output", "benchmark-results.json", "JSON output file path")
)

// Product pages covering the supported site families.
var defaultURLs = []string{
	"https://www.oliveyoung.co.kr/store/goods/getGoodsDetail.do?goodsNo=A000000184228",
	"https://www.musinsa.com/products/3614424",
	"https://smartstore.naver.com/rolarola/products/4893461578",
	"https://www.coupang.com/vp/products/7335597976",
	"https://www.29cm.co.kr/products/2281573",
}

type runResult struct {
	Run       int              `json:"run"`
	TotalMs   int64            `json:"total_ms"`
	Succeeded int              `json:"succeeded"`
	Failed    map[string]int   `json:"failed,omitempty"`
	PerURL    []urlObservation `json:"per_url"`
	Error     string           `json:"error,omitempty"`
}

type urlObservation struct {
	URL      string `json:"url"`
	HasPrice bool   `json:"has_price"`
	Images   int    `json:"images"`
	Code     string `json:"code,omitempty"`
}

type benchmarkReport struct {
	Timestamp string      `json:"timestamp"`
	APIURL    string      `json:"api_url"`
	URLs      []string    `json:"urls"`
	Runs      []runResult `json:"runs"`
}

func main() {
	flag.Parse()

	urls, err := loadURLs(*urlFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("=== Concierge Preview Benchmark ===")
	fmt.Printf("API URL:   %s\n", *apiURL)
	fmt.Printf("URLs:      %d\n", len(urls))
	fmt.Printf("Runs:      %d\n", *runs)
	fmt.Println()

	if err := checkAPI(*apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		os.Exit(1)
	}

	report := benchmarkReport{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		APIURL:    *apiURL,
		URLs:      urls,
	}

	for i := 1; i <= *runs; i++ {
		fmt.Printf("Run %d/%d ... ", i, *runs)
		rr := benchmarkPreview(urls, i)
		if rr.Error != "" {
			fmt.Printf("FAILED: %s\n", rr.Error)
		} else {
			fmt.Printf("%dms  %d/%d ok\n", rr.TotalMs, rr.Succeeded, len(urls))
		}
		report.Runs = append(report.Runs, rr)
	}
	fmt.Println()

	printTable(report)

	if err := writeJSON(*output, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

func loadURLs(path string) ([]string, error) {
	if path == "" {
		return defaultURLs, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var urls []string
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" && !strings.HasPrefix(line, "#") {
			urls = append(urls, line)
		}
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("%s lists no URLs", path)
	}
	return urls, nil
}

func checkAPI(baseURL string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(baseURL + "/api/v1/health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func benchmarkPreview(urls []string, run int) runResult {
	rr := runResult{Run: run, Failed: map[string]int{}}

	bodyBytes, err := json.Marshal(models.PreviewRequest{URLs: urls})
	if err != nil {
		rr.Error = fmt.Sprintf("marshal error: %v", err)
		return rr
	}

	req, err := http.NewRequest(http.MethodPost, *apiURL+"/api/v1/preview", bytes.NewReader(bodyBytes))
	if err != nil {
		rr.Error = fmt.Sprintf("request error: %v", err)
		return rr
	}
	req.Header.Set("Content-Type", "application/json")
	if *apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+*apiKey)
	}

	client := &http.Client{Timeout: 3 * time.Minute}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		rr.Error = fmt.Sprintf("request failed: %v", err)
		return rr
	}
	defer resp.Body.Close()

	var pr models.PreviewResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		rr.Error = fmt.Sprintf("decode error: %v", err)
		return rr
	}
	rr.TotalMs = time.Since(start).Milliseconds()

	for _, r := range pr.Results {
		obs := urlObservation{URL: r.URL, HasPrice: r.Price > 0, Images: len(r.Images)}
		if r.Error != nil {
			obs.Code = r.Error.Code
			rr.Failed[r.Error.Code]++
		} else {
			rr.Succeeded++
		}
		rr.PerURL = append(rr.PerURL, obs)
	}
	return rr
}

func printTable(report benchmarkReport) {
	fmt.Println(strings.Repeat("─", 85))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "URL\tOK\tPriced\tAvg Images\tFailures\n")
	fmt.Fprintf(w, "───\t──\t──────\t──────────\t────────\n")

	for i, u := range report.URLs {
		var ok, priced, images int
		codes := map[string]int{}
		for _, r := range report.Runs {
			if i >= len(r.PerURL) {
				continue
			}
			obs := r.PerURL[i]
			if obs.Code != "" {
				codes[obs.Code]++
				continue
			}
			ok++
			images += obs.Images
			if obs.HasPrice {
				priced++
			}
		}
		avgImages := 0.0
		if ok > 0 {
			avgImages = float64(images) / float64(ok)
		}
		fmt.Fprintf(w, "%s\t%d/%d\t%d\t%.1f\t%s\n",
			truncateURL(u, 50), ok, len(report.Runs), priced, avgImages, formatCodes(codes))
	}

	w.Flush()
	fmt.Println(strings.Repeat("─", 85))
}

func formatCodes(codes map[string]int) string {
	if len(codes) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(codes))
	for k := range codes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s×%d", k, codes[k]))
	}
	return strings.Join(parts, " ")
}

func truncateURL(u string, max int) string {
	if len(u) <= max {
		return u
	}
	return u[:max-3] + "..."
}

func writeJSON(path string, report benchmarkReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
