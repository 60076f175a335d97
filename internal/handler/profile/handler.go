package profile

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	chatService "github.com/zhouzirui/z-chat/backend/internal/service/chat"
	"github.com/zhouzirui/z-chat/backend/pkg/utils"
)

// Handler 个人资料与用户搜索的HTTP处理器
type Handler struct {
	chatSvc       *chatService.Service
	maxPhotoBytes int64
}

// New 创建个人资料处理器
func New(chatSvc *chatService.Service, maxPhotoBytes int64) *Handler {
	return &Handler{chatSvc: chatSvc, maxPhotoBytes: maxPhotoBytes}
}

// RegisterRoutes 注册资料路由，r 已挂载在 /users/{userID} 下
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/profile", h.handleGetProfile)
	r.Put("/username", h.handleSetUsername)
	r.Put("/photo", h.handleSetPhoto)
	r.Get("/search", h.handleSearch)
}

func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	user, err := h.chatSvc.LookupUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		utils.RespondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, user)
}

func (h *Handler) handleSetUsername(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Username string `json:"username"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondErr(w, err)
		return
	}

	user, err := h.chatSvc.SetMyUsername(r.Context(), chi.URLParam(r, "userID"), payload.Username)
	if err != nil {
		utils.RespondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, user)
}

func (h *Handler) handleSetPhoto(w http.ResponseWriter, r *http.Request) {
	part, err := utils.ReadFormPart(w, r, "photo", h.maxPhotoBytes)
	if err != nil {
		utils.RespondErr(w, err)
		return
	}

	user, err := h.chatSvc.SetMyPhoto(r.Context(), chi.URLParam(r, "userID"), part.Data)
	if err != nil {
		utils.RespondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, user)
}

// handleSearch 按用户名模糊搜索，无结果时返回空数组
func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	users, err := h.chatSvc.SearchUsers(r.Context(), chi.URLParam(r, "userID"), r.URL.Query().Get("username"))
	if err != nil {
		utils.RespondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, users)
}
