package models

// ModelAnalysis is the model endpoint's response body.
type ModelAnalysis struct {
	Success        bool               `json:"success"`
	TextPreview    string             `json:"text_preview,omitempty"`
	CharCount      int                `json:"char_count,omitempty"`
	Predictions    []PredictionResult `json:"predictions,omitempty"`
	KeywordMatches []string           `json:"keyword_matches,omitempty"`
	ModelUsed      string             `json:"model_used,omitempty"`
	ModelName      string             `json:"model_name,omitempty"`
	ModelLoaded    bool               `json:"model_loaded,omitempty"`
	Error          string             `json:"error,omitempty"`
}

// RuleAnalysis is the rule endpoint's response body.
type RuleAnalysis struct {
	Success      bool        `json:"success"`
	TextPreview  string      `json:"text_preview,omitempty"`
	TotalMatches int         `json:"total_matches"`
	MatchedSDGs  []RuleMatch `json:"matched_sdgs"`
	ModelUsed    string      `json:"model_used,omitempty"`
	Error        string      `json:"error,omitempty"`
}

// ExtractedDocument is the upload endpoint's response body: extracted text
// plus whatever structured metadata the extractor recovered.
type ExtractedDocument struct {
	Success          bool     `json:"success"`
	Filename         string   `json:"filename,omitempty"`
	FileType         string   `json:"file_type,omitempty"`
	CharCount        int      `json:"char_count,omitempty"`
	ExtractedText    string   `json:"extracted_text,omitempty"`
	TextPreview      string   `json:"text_preview,omitempty"`
	HasStructure     bool     `json:"has_structure,omitempty"`
	StructureQuality string   `json:"structure_quality,omitempty"`
	Title            string   `json:"title,omitempty"`
	Abstract         string   `json:"abstract,omitempty"`
	Keywords         []string `json:"keywords,omitempty"`
	Authors          []string `json:"authors,omitempty"`
	Year             string   `json:"year,omitempty"`
	Error            string   `json:"error,omitempty"`
}

// HealthStatus is the health endpoint's response body.
type HealthStatus struct {
	Status             string `json:"status"`
	ModelLoaded        bool   `json:"model_loaded"`
	Model              string `json:"model,omitempty"`
	SDGLabelsCount     int    `json:"sdg_labels_count,omitempty"`
	APIVersion         string `json:"api_version,omitempty"`
	ExtractorAvailable bool   `json:"extractor_available,omitempty"`
}

// SystemInfo is the info endpoint's response body.
type SystemInfo struct {
	Model            string            `json:"model,omitempty"`
	ModelType        string            `json:"model_type,omitempty"`
	ModelLoaded      bool              `json:"model_loaded"`
	SDGLabels        map[string]string `json:"sdg_labels"`
	MaxUploadSizeMB  float64           `json:"max_upload_size_mb,omitempty"`
	SupportedFormats []string          `json:"supported_formats,omitempty"`
	Features         map[string]bool   `json:"features"`
}
