package port

import (
	"context"
	"net/http"
)

// ProxyNotifier 通知外部代理进程重新加载路由；尽力而为，不返回错误。
type ProxyNotifier interface {
	Notify(ctx context.Context)
}

// Authenticator 判断请求方是否已认证。
type Authenticator interface {
	Authenticated(r *http.Request) bool
}
