// Package proto defines the message types exchanged between the analyzer
// service and analysis engines over the JSON-over-TCP RPC layer (see
// pkg/grpc). The same types are returned by the HTTP API.
package proto

// MethodParse is the RPC method name served by analysis engines.
const MethodParse = "AnalysisEngine.Parse"

// MethodInfo reports engine identity.
const MethodInfo = "AnalysisEngine.Info"

// ---------- Common ----------

// Range is a half-open byte range [Start, End) within a sentence.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Sentence is one unit of analysis. Exclusions mark byte ranges the engine
// must ignore, such as inline code or URLs.
type Sentence struct {
	Text       string  `json:"text"`
	Exclusions []Range `json:"exclusions,omitempty"`
}

// ---------- Analysis ----------

// Token is a word the engine looked at.
type Token struct {
	Text  string `json:"text"`
	Stem  string `json:"stem"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Finding is a style or grammar observation about a span of the sentence.
type Finding struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
}

// Analysis is the engine's result for one sentence.
type Analysis struct {
	Tokens        []Token   `json:"tokens"`
	WordCount     int       `json:"word_count"`
	StopWordRatio float64   `json:"stop_word_ratio"`
	Findings      []Finding `json:"findings,omitempty"`
}

// ---------- Parse ----------

// ParseRequest is the input to the Parse RPC.
type ParseRequest struct {
	Language  string     `json:"language"`
	Sentences []Sentence `json:"sentences"`
}

// ParseResponse is the output of the Parse RPC. Results is aligned with the
// request's Sentences; a nil entry means the engine produced nothing.
type ParseResponse struct {
	Results   []*Analysis `json:"results"`
	LatencyMs int64       `json:"latency_ms"`
}

// InfoResponse is the output of the Info RPC.
type InfoResponse struct {
	Name      string   `json:"name"`
	Languages []string `json:"languages"`
}

// HealthCheckResponse mirrors the gRPC health checking protocol.
type HealthCheckResponse struct {
	Status string `json:"status"` // SERVING, NOT_SERVING, UNKNOWN
}
