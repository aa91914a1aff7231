package models

// These structs define the JSON payloads of the transform HTTP function.

// TransformRequest asks for one pipeline operation over objects in Cloud Storage.
type TransformRequest struct {
	Operation string `json:"operation"`
	// Inputs are gs:// URIs, processed in order.
	Inputs []string `json:"inputs,omitempty"`
	// InputPrefix is a gs://bucket/prefix whose .pdf objects are appended to Inputs in
	// lexical order.
	InputPrefix string `json:"inputPrefix,omitempty"`
	// Output names the single output object for merge, split-range and extract.
	Output string `json:"output,omitempty"`
	// OutputPrefix is prepended to every uploaded object name. It defaults to a new job ID.
	OutputPrefix string `json:"outputPrefix,omitempty"`

	Compression   *CompressionSettings `json:"compression,omitempty"`
	CompressAfter bool                 `json:"compressAfter,omitempty"`
	Range         PageRange            `json:"range"`
	Pages         string               `json:"pages,omitempty"`
	Watermark     *WatermarkSettings   `json:"watermark,omitempty"`
	Protection    ProtectionSettings   `json:"protection"`
	Password      string               `json:"password,omitempty"`
}

// TransformResponse reports the outcome of a TransformRequest with object URIs in place of
// local paths.
type TransformResponse struct {
	JobID   string       `json:"jobId"`
	Status  string       `json:"status"`
	Kind    ErrorKind    `json:"kind,omitempty"`
	Error   string       `json:"error,omitempty"`
	Metrics Metrics      `json:"metrics"`
	Outputs []string     `json:"outputs,omitempty"`
	Files   []FileResult `json:"files,omitempty"`
}
