package chat

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
	chatService "github.com/zhouzirui/z-chat/backend/internal/service/chat"
	"github.com/zhouzirui/z-chat/backend/pkg/apperr"
	"github.com/zhouzirui/z-chat/backend/pkg/utils"
)

// IdempotencyHeader 客户端为发消息请求指定的幂等键
const IdempotencyHeader = "Idempotency-Key"

// Handler 会话与消息的HTTP处理器
type Handler struct {
	chatSvc       *chatService.Service
	maxPhotoBytes int64
}

// New 创建会话处理器
func New(chatSvc *chatService.Service, maxPhotoBytes int64) *Handler {
	return &Handler{
		chatSvc:       chatSvc,
		maxPhotoBytes: maxPhotoBytes,
	}
}

// RegisterRoutes 注册会话、消息与评论路由，r 已挂载在 /users/{userID} 下
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/conversations", func(r chi.Router) {
		r.Get("/", h.handleListConversations)
		r.Put("/", h.handleAddConversation)
		r.Route("/{conversationID}", func(r chi.Router) {
			r.Get("/", h.handleGetConversation)
			r.Post("/messages", h.handlePostMessage)
			r.Route("/messages/{messageID}", func(r chi.Router) {
				r.Delete("/", h.handleDeleteMessage)
				r.Post("/forwardMessage", h.handleForwardMessage)
				r.Post("/replyMessage", h.handleReplyMessage)
				r.Put("/comments", h.handleCommentMessage)
				r.Delete("/comments/{commentID}", h.handleUncommentMessage)
			})
		})
	})
}

// handleListConversations 列出当前用户参与的全部会话
func (h *Handler) handleListConversations(w http.ResponseWriter, r *http.Request) {
	order, err := chatService.ParseSortOrder(r.URL.Query().Get("sort"), chat.SortDesc)
	if err != nil {
		utils.RespondErr(w, err)
		return
	}

	list, err := h.chatSvc.ListConversations(r.Context(), chi.URLParam(r, "userID"), order)
	if err != nil {
		utils.RespondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, list)
}

// handleAddConversation 与目标用户建立私聊（已存在则直接返回）或新建群聊
func (h *Handler) handleAddConversation(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		TargetUsername string                `json:"targetUsername"`
		Type           chat.ConversationType `json:"type"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondErr(w, err)
		return
	}
	if payload.TargetUsername == "" {
		utils.RespondErr(w, apperr.Invalid("targetUsername is required"))
		return
	}
	if payload.Type == "" {
		payload.Type = chat.ConversationDirect
	}

	summary, created, err := h.chatSvc.CreateOrGetConversation(r.Context(), chi.URLParam(r, "userID"), payload.TargetUsername, payload.Type)
	if err != nil {
		utils.RespondErr(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	utils.RespondJSON(w, status, summary)
}

// handleGetConversation 返回会话详情及消息，同时记录已读位置
func (h *Handler) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	order, err := chatService.ParseSortOrder(r.URL.Query().Get("sort"), chat.SortAsc)
	if err != nil {
		utils.RespondErr(w, err)
		return
	}

	conv, err := h.chatSvc.GetConversation(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "conversationID"), order)
	if err != nil {
		utils.RespondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, conv)
}

// handlePostMessage 发送文本或图片消息
func (h *Handler) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	content, err := h.readContent(w, r)
	if err != nil {
		utils.RespondErr(w, err)
		return
	}

	msg, err := h.chatSvc.PostMessage(r.Context(),
		chi.URLParam(r, "userID"),
		chi.URLParam(r, "conversationID"),
		content,
		strings.TrimSpace(r.Header.Get(IdempotencyHeader)))
	if err != nil {
		utils.RespondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, msg)
}

// handleReplyMessage 回复同一会话中的某条消息
func (h *Handler) handleReplyMessage(w http.ResponseWriter, r *http.Request) {
	content, err := h.readContent(w, r)
	if err != nil {
		utils.RespondErr(w, err)
		return
	}

	msg, err := h.chatSvc.ReplyMessage(r.Context(),
		chi.URLParam(r, "userID"),
		chi.URLParam(r, "conversationID"),
		chi.URLParam(r, "messageID"),
		content,
		strings.TrimSpace(r.Header.Get(IdempotencyHeader)))
	if err != nil {
		utils.RespondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, msg)
}

// handleForwardMessage 将消息转发到另一个会话
func (h *Handler) handleForwardMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ConversationID string `json:"conversationId"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondErr(w, err)
		return
	}
	if payload.ConversationID == "" {
		utils.RespondErr(w, apperr.Invalid("conversationId is required"))
		return
	}

	msg, err := h.chatSvc.ForwardMessage(r.Context(),
		chi.URLParam(r, "userID"),
		chi.URLParam(r, "conversationID"),
		chi.URLParam(r, "messageID"),
		payload.ConversationID)
	if err != nil {
		utils.RespondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, msg)
}

// handleDeleteMessage 删除自己发送的消息及其评论
func (h *Handler) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	err := h.chatSvc.DeleteMessage(r.Context(),
		chi.URLParam(r, "userID"),
		chi.URLParam(r, "conversationID"),
		chi.URLParam(r, "messageID"))
	if err != nil {
		utils.RespondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCommentMessage 添加或替换当前用户对消息的表情评论
func (h *Handler) handleCommentMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Content string `json:"content"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondErr(w, err)
		return
	}

	comment, err := h.chatSvc.CommentMessage(r.Context(),
		chi.URLParam(r, "userID"),
		chi.URLParam(r, "conversationID"),
		chi.URLParam(r, "messageID"),
		payload.Content)
	if err != nil {
		utils.RespondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, comment)
}

// handleUncommentMessage 删除评论，评论不存在时同样返回成功
func (h *Handler) handleUncommentMessage(w http.ResponseWriter, r *http.Request) {
	err := h.chatSvc.UncommentMessage(r.Context(),
		chi.URLParam(r, "userID"),
		chi.URLParam(r, "conversationID"),
		chi.URLParam(r, "messageID"),
		chi.URLParam(r, "commentID"))
	if err != nil {
		utils.RespondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// readContent 解析消息内容：multipart 的 content 字段（文件为图片，文本为文字），
// 或 JSON 的 {"content": "..."}
func (h *Handler) readContent(w http.ResponseWriter, r *http.Request) (chat.Content, error) {
	if utils.IsMultipart(r) {
		part, err := utils.ReadFormPart(w, r, "content", h.maxPhotoBytes)
		if err != nil {
			return chat.Content{}, err
		}
		if part.IsFile {
			return chat.PhotoContent(part.Data), nil
		}
		return chat.TextContent(string(part.Data)), nil
	}

	var payload struct {
		Content string `json:"content"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		return chat.Content{}, err
	}
	return chat.TextContent(payload.Content), nil
}
