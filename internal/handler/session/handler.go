package session

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	chatService "github.com/zhouzirui/z-chat/backend/internal/service/chat"
	"github.com/zhouzirui/z-chat/backend/pkg/utils"
)

// Handler 登录（身份解析）处理器
type Handler struct {
	chatSvc *chatService.Service
}

// New 创建登录处理器
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes 注册无需认证的登录路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleLogin)
}

// handleLogin 按用户名解析身份，首次出现时注册新用户
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name string `json:"name"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondErr(w, err)
		return
	}

	user, created, err := h.chatSvc.ResolveIdentity(r.Context(), payload.Name)
	if err != nil {
		utils.RespondErr(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	utils.RespondJSON(w, status, map[string]string{"id": user.ID})
}
