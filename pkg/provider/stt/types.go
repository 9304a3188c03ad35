package stt

// Request is one recorded utterance submitted for transcription.
type Request struct {
	// Data is the encoded audio file (wav, webm, mp3, m4a, ...) exactly as
	// uploaded. Providers do not transcode.
	Data []byte

	// Filename is the client-supplied file name. Backends use its extension to
	// detect the container format, so a sensible default is substituted when
	// it is empty.
	Filename string

	// ContentType is the declared MIME type. May be empty.
	ContentType string

	// Language is the ISO-639-1 recognition hint (e.g. "ta"). Empty lets the
	// backend auto-detect.
	Language string
}

// DefaultFilename is used when the client did not name its upload.
const DefaultFilename = "audio.wav"

// Name returns r.Filename or [DefaultFilename] when unset.
func (r Request) Name() string {
	if r.Filename == "" {
		return DefaultFilename
	}
	return r.Filename
}
