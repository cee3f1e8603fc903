package genai

import "strings"

// Request and response shapes of the generateContent REST endpoint. Only the
// fields this service reads or sets are declared.

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts,omitempty"`
}

type wirePart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *wireInline `json:"inlineData,omitempty"`
	FileData   *wireFile   `json:"fileData,omitempty"`
}

type wireInline struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type wireFile struct {
	MimeType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri,omitempty"`
}

type wireGenerationConfig struct {
	CandidateCount     int              `json:"candidateCount,omitempty"`
	ResponseMimeType   string           `json:"responseMimeType,omitempty"`
	ResponseModalities []string         `json:"responseModalities,omitempty"`
	Temperature        *float64         `json:"temperature,omitempty"`
	Seed               *int64           `json:"seed,omitempty"`
	ImageConfig        *wireImageConfig `json:"imageConfig,omitempty"`
}

type wireImageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type wireRequest struct {
	SystemInstruction *wireContent          `json:"systemInstruction,omitempty"`
	Contents          []wireContent         `json:"contents"`
	GenerationConfig  *wireGenerationConfig `json:"generationConfig,omitempty"`
}

type wireResponse struct {
	Candidates []struct {
		Content      wireContent `json:"content"`
		FinishReason string      `json:"finishReason,omitempty"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason,omitempty"`
	} `json:"promptFeedback,omitempty"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata,omitempty"`
}

type wireError struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
		Status  string `json:"status,omitempty"`
	} `json:"error"`
}

// userTurn builds a single user message from images followed by text. Empty
// images are dropped.
func userTurn(images []InlineImage, text string) []wireContent {
	parts := make([]wirePart, 0, len(images)+1)
	for _, img := range images {
		if len(img.Data) > 0 {
			parts = append(parts, inlinePart(img))
		}
	}
	parts = append(parts, wirePart{Text: text})
	return []wireContent{{Role: "user", Parts: parts}}
}

func (r *wireResponse) usage() Usage {
	if r == nil || r.UsageMetadata == nil {
		return Usage{}
	}
	return Usage{InputTokens: r.UsageMetadata.PromptTokenCount, OutputTokens: r.UsageMetadata.CandidatesTokenCount}
}

// blockedFinish lists finish reasons that mean the output was withheld.
var blockedFinish = map[string]bool{
	"SAFETY":             true,
	"IMAGE_SAFETY":       true,
	"PROHIBITED_CONTENT": true,
	"BLOCKLIST":          true,
	"SPII":               true,
}

// blockReason returns why the response was withheld, or "".
func (r *wireResponse) blockReason() string {
	if r == nil {
		return ""
	}
	if r.PromptFeedback != nil && r.PromptFeedback.BlockReason != "" {
		return "prompt:" + r.PromptFeedback.BlockReason
	}
	for _, cand := range r.Candidates {
		if blockedFinish[strings.ToUpper(cand.FinishReason)] {
			return cand.FinishReason
		}
	}
	return ""
}
