package group

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	chatService "github.com/zhouzirui/z-chat/backend/internal/service/chat"
	"github.com/zhouzirui/z-chat/backend/pkg/apperr"
	"github.com/zhouzirui/z-chat/backend/pkg/utils"
)

// Handler 群组成员与资料的HTTP处理器
type Handler struct {
	chatSvc       *chatService.Service
	maxPhotoBytes int64
}

// New 创建群组处理器
func New(chatSvc *chatService.Service, maxPhotoBytes int64) *Handler {
	return &Handler{chatSvc: chatSvc, maxPhotoBytes: maxPhotoBytes}
}

// RegisterRoutes 注册群组路由，r 已挂载在 /users/{userID} 下
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/groups/{groupID}", func(r chi.Router) {
		r.Get("/members", h.handleGetMembers)
		r.Put("/members", h.handleAddMember)
		r.Delete("/members/me", h.handleLeave)
		r.Put("/name", h.handleSetName)
		r.Put("/photo", h.handleSetPhoto)
	})
}

func (h *Handler) handleGetMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.chatSvc.GetGroupMembers(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "groupID"))
	if err != nil {
		utils.RespondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, members)
}

func (h *Handler) handleAddMember(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Username string `json:"username"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondErr(w, err)
		return
	}
	if payload.Username == "" {
		utils.RespondErr(w, apperr.Invalid("username is required"))
		return
	}

	added, err := h.chatSvc.AddMember(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "groupID"), payload.Username)
	if err != nil {
		utils.RespondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, added)
}

// handleLeave 退出群组；最后一人退出后群组只读
func (h *Handler) handleLeave(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.LeaveGroup(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "groupID")); err != nil {
		utils.RespondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetName(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name string `json:"name"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondErr(w, err)
		return
	}

	summary, err := h.chatSvc.SetGroupName(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "groupID"), payload.Name)
	if err != nil {
		utils.RespondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleSetPhoto(w http.ResponseWriter, r *http.Request) {
	part, err := utils.ReadFormPart(w, r, "photo", h.maxPhotoBytes)
	if err != nil {
		utils.RespondErr(w, err)
		return
	}

	summary, err := h.chatSvc.SetGroupPhoto(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "groupID"), part.Data)
	if err != nil {
		utils.RespondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, summary)
}
