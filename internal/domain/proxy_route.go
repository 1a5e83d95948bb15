package domain

import "time"

// ProxyRoute 把一个子域名反向代理到上游地址，与静态 Deployment 相互独立。
type ProxyRoute struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Subdomain          string    `json:"subdomain"`
	DestinationAddress string    `json:"destination_address"`
	UseCORSHeaders     bool      `json:"use_cors_headers"`
	CreatedOn          time.Time `json:"created_on"`
}
