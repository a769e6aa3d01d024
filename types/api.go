package types

// TrackInfo describes an uploaded audio file inside a project
type TrackInfo struct {
	Filename        string  `json:"filename"`
	Size            int64   `json:"size"`
	Format          string  `json:"format"` // "flac", "mp3", "wav", ...
	ContentType     string  `json:"contentType"`
	Title           string  `json:"title,omitempty"`
	Artist          string  `json:"artist,omitempty"`
	Album           string  `json:"album,omitempty"`
	TrackNumber     int     `json:"trackNumber,omitempty"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
}
