package audit

import "time"

// TimelineFilters menampung filter dasar untuk log event autentikasi.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	Username string
	Kind     string
	Page     int
	PageSize int
}

// TimelineRow mewakili satu event autentikasi.
type TimelineRow struct {
	At         time.Time `json:"at"`
	Kind       string    `json:"kind"`
	Username   string    `json:"username"`
	UserID     int64     `json:"user_id,omitempty"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
}

// PagingInfo menyimpan metadata pagination sederhana.
type PagingInfo struct {
	Page     int  `json:"page"`
	HasNext  bool `json:"has_next"`
	PageSize int  `json:"page_size"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result membungkus hasil timeline dengan informasi paging.
type Result struct {
	Rows   []TimelineRow `json:"rows"`
	Paging PagingInfo    `json:"paging"`
}
