package messaging

// aiSensyCampaignRequest is the body of a campaign send
type aiSensyCampaignRequest struct {
	APIKey         string          `json:"apiKey"`
	CampaignName   string          `json:"campaignName"`
	Destination    string          `json:"destination"`
	UserName       string          `json:"userName"`
	Source         string          `json:"source,omitempty"`
	TemplateParams []string        `json:"templateParams"`
	Media          *aiSensyMedia   `json:"media,omitempty"`
	Buttons        []aiSensyButton `json:"buttons,omitempty"`
}

type aiSensyMedia struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

type aiSensyButton struct {
	Type       string                   `json:"type"`
	SubType    string                   `json:"sub_type"`
	Index      string                   `json:"index"`
	Parameters []aiSensyButtonParameter `json:"parameters"`
}

type aiSensyButtonParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// AiSensyErrorResponse is the body returned when a send is rejected
type AiSensyErrorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}
