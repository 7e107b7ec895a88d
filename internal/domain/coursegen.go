package domain

// Source is the material a pipeline run starts from: either an AudioSource or
// a TextSource. It is dispatched once, at the orchestrator entry.
type Source interface {
	SourceType() string
}

type AudioSource struct {
	Path string
}

func (AudioSource) SourceType() string { return "audio" }

type TextSource struct {
	Content string
}

func (TextSource) SourceType() string { return "text" }

// AudioSegment is one exported slice of an audio asset.
type AudioSegment struct {
	SequenceIndex int    `json:"sequence_index"`
	FilePath      string `json:"file_path"`
	StartMs       int64  `json:"start_ms"`
	DurationMs    int64  `json:"duration_ms"`
}

type TextChunk struct {
	SequenceIndex   int    `json:"sequence_index"`
	Text            string `json:"text"`
	EstimatedTokens int    `json:"estimated_tokens"`
}

type ChatRole string

const (
	RoleSystem    ChatRole = "system"
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

type ChatMessage struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}

// ModelSet names the model used for each stage.
type ModelSet struct {
	Course     string `json:"course" yaml:"course"`
	Summary    string `json:"summary" yaml:"summary"`
	Quiz       string `json:"qcm" yaml:"qcm"`
	Exercises  string `json:"exercises" yaml:"exercises"`
	Transcribe string `json:"transcribe" yaml:"transcribe"`
}

// PipelineResult is the terminal bundle of one successful run.
type PipelineResult struct {
	RunID          string   `json:"run_id"`
	SourceType     string   `json:"source_type"`
	Language       string   `json:"language"`
	Transcript     string   `json:"transcript"`
	Course         string   `json:"course"`
	Quiz           string   `json:"qcm"`
	Exercises      string   `json:"exercises"`
	ChunkPreview   []string `json:"chunks_preview"`
	SummaryPreview []string `json:"summaries_preview"`
	QuizProblems   []string `json:"quiz_problems,omitempty"`
	Models         ModelSet `json:"models"`
}
