package normalize

// Kind discriminates the variants of a Request.
type Kind int

const (
	// KindText is already-typed text.
	KindText Kind = iota
	// KindAudio is a recorded utterance to be transcribed.
	KindAudio
	// KindDocument is a PDF or image upload.
	KindDocument
)

// String returns the lower-case name of k.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindAudio:
		return "audio"
	case KindDocument:
		return "document"
	default:
		return "unknown"
	}
}

// Request is an immutable tagged union over the three input shapes. Build one
// with [Text], [Audio] or [Document].
type Request struct {
	kind        Kind
	text        string
	data        []byte
	filename    string
	contentType string
}

// Text returns a Request carrying typed text.
func Text(s string) Request {
	return Request{kind: KindText, text: s}
}

// Audio returns a Request carrying encoded audio.
func Audio(data []byte, filename, contentType string) Request {
	return Request{kind: KindAudio, data: data, filename: filename, contentType: contentType}
}

// Document returns a Request carrying a PDF or image upload.
func Document(data []byte, filename, contentType string) Request {
	return Request{kind: KindDocument, data: data, filename: filename, contentType: contentType}
}

// Kind returns the variant of r.
func (r Request) Kind() Kind { return r.kind }

// Filename returns the upload filename, or "" for text.
func (r Request) Filename() string { return r.filename }

// ContentType returns the declared media type, or "" for text.
func (r Request) ContentType() string { return r.contentType }

// Provenance records which path produced an extracted text.
type Provenance string

const (
	// ProvenanceDirectText is typed text or a PDF text layer.
	ProvenanceDirectText Provenance = "direct-text"
	// ProvenanceOCRFallback is OCR of a rasterized PDF whose text layer was empty.
	ProvenanceOCRFallback Provenance = "ocr-fallback"
	// ProvenanceImageOCR is OCR of an uploaded image.
	ProvenanceImageOCR Provenance = "image-ocr"
	// ProvenanceSpeechTranscript is a transcription of uploaded audio.
	ProvenanceSpeechTranscript Provenance = "speech-transcript"
)

// Result is the outcome of a normalization. An empty Text is a valid result
// meaning that nothing could be extracted.
type Result struct {
	Text       string
	Provenance Provenance
}
