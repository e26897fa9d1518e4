package canvas

// ══════════════════════════════════════════════════════════════════════════════
// DATA TRANSFER OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// UserDTO is a user record as returned by the Canvas accounts/users listing.
// Canvas assigns short numeric user IDs that differ from the account names
// participants log in with; the listing is the only way to map between them.
type UserDTO struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	SortName  string `json:"sortable_name"`
	LoginID   string `json:"login_id"`
	SISUserID string `json:"sis_user_id"`
}

// FolderDTO is a folder in a user's file area.
type FolderDTO struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
}

// FileUploadTicketDTO is the first-step response of the Canvas file upload
// flow. The actual bytes go to UploadURL in a second multipart request.
type FileUploadTicketDTO struct {
	UploadURL    string            `json:"upload_url"`
	UploadParams map[string]string `json:"upload_params"`
}

// FileUploadResultDTO is the second-step response of the upload flow.
type FileUploadResultDTO struct {
	ID           int    `json:"id"`
	UploadStatus string `json:"upload_status"`
	DisplayName  string `json:"display_name"`
	Size         int64  `json:"size"`
}

// conversationErrorDTO is the error envelope Canvas returns when a
// conversation request fails. A successful send returns a JSON array
// instead, so the shape of the response doubles as the success signal.
type conversationErrorDTO struct {
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (e *conversationErrorDTO) message() string {
	if len(e.Errors) > 0 {
		return e.Errors[0].Message
	}
	return "unknown conversation error"
}
