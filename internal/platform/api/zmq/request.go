package zmq

type ApiRequest struct {
	Action     string   `json:"action,omitempty"`
	HandleID   string   `json:"handle_id,omitempty"`
	Path       string   `json:"path,omitempty"`
	Passphrase string   `json:"passphrase,omitempty"`
	Flags      []string `json:"flags,omitempty"`
	SQL        string   `json:"sql,omitempty"`
	MaxRows    int      `json:"max_rows,omitempty"`
}

type ApiResponse struct {
	Success  bool     `json:"success"`
	Error    string   `json:"error,omitempty"`
	HandleID string   `json:"handle_id,omitempty"`
	Columns  []string `json:"columns,omitempty"`
	Rows     [][]any  `json:"rows,omitempty"`
}
