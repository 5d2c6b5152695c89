package mmal

// Encoding identifies a pixel or stream encoding on a port, FourCC style.
type Encoding string

// Encodings used by the camera pipeline.
const (
	EncodingNone   Encoding = ""
	EncodingI420   Encoding = "I420"
	EncodingRGB24  Encoding = "RGB3"
	EncodingOpaque Encoding = "OPQV"
	EncodingJPEG   Encoding = "JPEG"
)

// Rational is a frame rate expressed as a fraction.
type Rational struct {
	Num int
	Den int
}

// Rect describes a crop region in pixels.
type Rect struct {
	X      int
	Y      int
	Width  int
	Height int
}

// VideoFormat carries the spatial and temporal parameters of a video stream.
type VideoFormat struct {
	Width     int
	Height    int
	Crop      Rect
	FrameRate Rational
}

// Format is the negotiated elementary stream format of a port. Callers
// mutate the fields and then commit them via Port.CommitFormat.
type Format struct {
	Encoding        Encoding
	EncodingVariant Encoding
	Bitrate         int
	Video           VideoFormat
}

// CopyFrom replicates src onto f, field by field.
func (f *Format) CopyFrom(src *Format) {
	*f = *src
}

// FrameBytes returns the byte size of one uncompressed frame in this format,
// or 0 for compressed/opaque encodings.
func (f *Format) FrameBytes() int {
	w, h := f.Video.Width, f.Video.Height
	switch f.Encoding {
	case EncodingI420:
		return w * h * 3 / 2
	case EncodingRGB24:
		return w * h * 3
	default:
		return 0
	}
}
