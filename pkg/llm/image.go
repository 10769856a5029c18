package llm

// ImageRequest is the body of POST /image.
type ImageRequest struct {
	Model          string   `json:"model"`
	Prompt         string   `json:"prompt"`
	Width          int      `json:"width"`
	Height         int      `json:"height"`
	Format         string   `json:"format"`
	Steps          *int     `json:"steps,omitempty"`
	CfgScale       *float64 `json:"cfg_scale,omitempty"`
	NegativePrompt string   `json:"negative_prompt,omitempty"`
	Seed           *int     `json:"seed,omitempty"`
}

// ImageResponse carries base64-encoded images.
type ImageResponse struct {
	ID     string   `json:"id,omitempty"`
	Images []string `json:"images"`
}
