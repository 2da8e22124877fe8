package handler

import (
	"tcpchat/internal/app/chat"
	"tcpchat/internal/configs"
)

// AppDeps carries what the ops HTTP surface needs from the running server.
type AppDeps struct {
	Chat     *chat.Server
	Registry *chat.Registry
	Config   *configs.AppConfig
}
