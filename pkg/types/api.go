package types

// FormatSpec selects one output encode for a job or variant.
type FormatSpec struct {
	// Container/codec extension: mp3, flac, wav, ogg.
	// example: mp3
	Ext string `json:"ext" example:"mp3"`
	// Encoder bitrate for lossy formats, e.g. "320k".
	// example: 320k
	Bitrate string `json:"bitrate,omitempty" example:"320k"`
	// Output sample rate in Hz; 0 keeps the source rate.
	// example: 44100
	SampleRate int `json:"sample_rate,omitempty" example:"44100"`
	// Output bit depth for lossless formats; 0 keeps the source depth.
	// example: 24
	BitDepth int `json:"bit_depth,omitempty" example:"24"`
}

// JobOptions carries every processing choice that affects output bytes.
type JobOptions struct {
	// Voicing (preset) identifier.
	// example: warm
	Voicing string `json:"voicing" example:"warm"`
	// Processing strength percentage, 0-100.
	// example: 80
	Strength int `json:"strength" example:"80"`
	// Integrated loudness target in LUFS.
	// example: -14
	TargetLUFS float64 `json:"target_lufs,omitempty" example:"-14"`
	// True peak ceiling in dBTP.
	// example: -1
	TruePeakDB float64 `json:"true_peak_db,omitempty" example:"-1"`
	// Stereo width multiplier; 1.0 is unchanged.
	// example: 1.12
	Width float64 `json:"width,omitempty" example:"1.12"`
	// Mono-below crossover frequency in Hz; 0 disables.
	// example: 120
	BassMonoHz int `json:"bass_mono_hz,omitempty" example:"120"`
	// Output formats to encode; empty defaults to the source format.
	Formats []FormatSpec `json:"formats,omitempty"`
}

// JobStartRequest asks the server to master one run per input file.
type JobStartRequest struct {
	// Previously uploaded file names to process.
	// example: ["mix.wav"]
	Files []string `json:"files" example:"mix.wav"`
	// Processing options shared by all files in the request.
	Options JobOptions `json:"options"`
}

// JobStartResponse returns the run ids created, one per input file.
type JobStartResponse struct {
	Runs []string `json:"runs"`
}

// RunSnapshot is returned by the run status endpoint for polling clients.
type RunSnapshot struct {
	// Buffered events, oldest first.
	Events []Event `json:"events"`
	// True once a complete/error event was published.
	// example: true
	Terminal bool `json:"terminal" example:"true"`
	// Highest sequence id assigned so far.
	// example: 7
	LastSequenceID uint64 `json:"last_sequence_id" example:"7"`
}

// FilesResponse lists the uploaded audio files available as job inputs.
type FilesResponse struct {
	// example: ["mix.wav"]
	Files []string `json:"files"`
}

// PreviewRequest asks for a short disposable preview render.
type PreviewRequest struct {
	// Uploaded source file name.
	// example: mix.wav
	Source string `json:"source" example:"mix.wav"`
	// Voicing identifier.
	// example: warm
	Voicing string `json:"voicing" example:"warm"`
	// Processing strength percentage.
	// example: 80
	Strength int `json:"strength" example:"80"`
	// Stereo width multiplier.
	// example: 1.12
	Width float64 `json:"width,omitempty" example:"1.12"`
}

// PreviewStartResponse acknowledges a preview render was scheduled.
type PreviewStartResponse struct {
	// example: 6dfdcbd1-9bbf-4a45-9ef4-cf84a1f1f6a3
	PreviewID string `json:"preview_id" example:"6dfdcbd1-9bbf-4a45-9ef4-cf84a1f1f6a3"`
}

// PreviewStatus reports the lifecycle of one preview entry.
type PreviewStatus struct {
	// building, ready or error.
	// example: ready
	Status string `json:"status" example:"ready"`
	// Fetch URL, present once ready.
	// example: /api/previews/6dfdcbd1/audio
	URL string `json:"url,omitempty" example:"/api/previews/6dfdcbd1/audio"`
	// Short error message when status is error.
	Error string `json:"error,omitempty"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}
