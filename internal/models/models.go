package models

import "time"

// CaptureRecord is a completed capture shown on the kiosk
type CaptureRecord struct {
	ID        string    `json:"id"`
	ImageID   string    `json:"image_id"`
	TaskID    string    `json:"task_id,omitempty"`
	PromptID  string    `json:"prompt_id,omitempty"`
	Prompt    string    `json:"prompt,omitempty"`
	ResultURL string    `json:"result_url"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
}
