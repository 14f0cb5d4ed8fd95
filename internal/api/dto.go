package api

// RunRequest carries one inference request for the loaded operator. Input is
// float data in row-major order for the given shape; the server quantizes it
// with the supplied activation parameters before the integer forward pass.
type RunRequest struct {
	Input          []float32 `json:"input"`
	Shape          []int     `json:"shape"`
	InputScale     float32   `json:"input_scale"`
	InputZeroPoint int32     `json:"input_zero_point"`
}

// RunResponse returns both the raw output codes and their dequantized float
// values, along with the output shape.
type RunResponse struct {
	ID        string    `json:"id"`
	Operator  string    `json:"operator"`
	Shape     []int     `json:"shape"`
	Codes     []uint8   `json:"codes"`
	Output    []float32 `json:"output"`
	ElapsedMS float64   `json:"elapsed_ms"`
}

// OperatorResponse describes the loaded operator.
type OperatorResponse struct {
	Name            string  `json:"name"`
	Kind            string  `json:"kind"`
	Scheme          string  `json:"scheme"`
	InputChannels   int     `json:"input_channels"`
	OutputChannels  int     `json:"output_channels"`
	Kernel          []int64 `json:"kernel,omitempty"`
	Stride          []int64 `json:"stride,omitempty"`
	Padding         []int64 `json:"padding,omitempty"`
	OutputScale     float32 `json:"output_scale"`
	OutputZeroPoint int32   `json:"output_zero_point"`
	Activation      string  `json:"activation"`
}

// APIError is the error payload wrapped under the "error" key.
type APIError struct {
	Message string `json:"message,omitempty"`
	Type    string `json:"type,omitempty"`
	Param   string `json:"param,omitempty"`
}
