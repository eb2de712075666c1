package models

// PreviewRequest is the payload for POST /api/v1/preview.
type PreviewRequest struct {
	// URLs are customer-submitted product links. Required.
	URLs []string `json:"urls" binding:"required,min=1,max=20,dive,required"`

	// MaxAge allows serving a cached preview younger than this many
	// milliseconds. Default: 0 (no cache).
	MaxAge int `json:"max_age,omitempty" binding:"omitempty,min=0"`
}

// RefreshRequest is the payload for POST /api/v1/rankings/refresh.
type RefreshRequest struct {
	// Categories restricts the run to these category keys.
	// Empty means the full configured catalog.
	Categories []string `json:"categories,omitempty"`
}

// ParseRequest is the payload for POST /api/v1/products/parse.
type ParseRequest struct {
	// URL is the product detail page. Required.
	URL string `json:"url" binding:"required,url"`

	// Category is an optional hint used for weight inference.
	Category string `json:"category,omitempty"`
}
