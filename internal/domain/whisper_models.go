package domain

// WhisperModelOption describes the whisper.cpp model backing one tier.
type WhisperModelOption struct {
	Tier        ModelTier `json:"tier"`
	Name        string    `json:"name"`
	FileName    string    `json:"fileName"`
	URL         string    `json:"url"`
	SizeLabel   string    `json:"sizeLabel,omitempty"`
	Description string    `json:"description,omitempty"`
	Downloaded  bool      `json:"downloaded"`
	LocalPath   string    `json:"localPath,omitempty"`
}
