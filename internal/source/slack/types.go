package slack

// Wire types for the handful of Web API methods the collector calls.
// Fields not read by the collector are omitted.

type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

type conversationsListResponse struct {
	apiResponse
	Channels []channel `json:"channels"`
	Meta     struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}

type channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	IsIM bool   `json:"is_im"`
	User string `json:"user"` // peer user id, IMs only
}

type conversationsHistoryResponse struct {
	apiResponse
	Messages []historyMessage `json:"messages"`
	HasMore  bool             `json:"has_more"`
	Meta     struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}

type historyMessage struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
	User    string `json:"user"`
	BotID   string `json:"bot_id"`
	Text    string `json:"text"`
	TS      string `json:"ts"` // "1726300800.000200"
}

type usersInfoResponse struct {
	apiResponse
	User struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		RealName string `json:"real_name"`
		Profile  struct {
			DisplayName string `json:"display_name"`
		} `json:"profile"`
	} `json:"user"`
}
