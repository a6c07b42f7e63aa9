package veo

// predictRequest is the body of models/{model}:predictLongRunning
type predictRequest struct {
	Instances  []instance `json:"instances"`
	Parameters parameters `json:"parameters"`
}

type instance struct {
	Prompt string `json:"prompt"`
}

type parameters struct {
	AspectRatio    string `json:"aspectRatio,omitempty"`
	NegativePrompt string `json:"negativePrompt,omitempty"`
}

type operationResponse struct {
	Name     string          `json:"name"`
	Done     bool            `json:"done"`
	Response *videoResponse  `json:"response,omitempty"`
	Error    *operationError `json:"error,omitempty"`
}

// videoResponse accepts both the flat sample list and the list nested under
// generateVideoResponse, which the public API returns.
type videoResponse struct {
	GeneratedSamples      []generatedSample `json:"generatedSamples,omitempty"`
	GenerateVideoResponse *struct {
		GeneratedSamples []generatedSample `json:"generatedSamples,omitempty"`
	} `json:"generateVideoResponse,omitempty"`
}

type generatedSample struct {
	Video struct {
		URI string `json:"uri"`
	} `json:"video"`
}

type operationError struct {
	Code    int    `json:"code,omitempty"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

func (r *videoResponse) firstVideoURI() string {
	if r == nil {
		return ""
	}
	samples := r.GeneratedSamples
	if len(samples) == 0 && r.GenerateVideoResponse != nil {
		samples = r.GenerateVideoResponse.GeneratedSamples
	}
	for _, sample := range samples {
		if sample.Video.URI != "" {
			return sample.Video.URI
		}
	}
	return ""
}
