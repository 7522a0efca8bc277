// Package handlers – the public API surface.
//
// Every method is invoked as POST /api/:method with a JSON body carrying the
// caller's WebApp init data plus method parameters. Dispatch goes through a
// typed command registry: a map from method name to a strongly typed handler
// function, so adding a method means adding one entry, not another branch.
//
// Handlers are transport-thin: they validate input, call application
// services, and translate sentinel errors into stable wire codes.
package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/1thousandframework/go-gift-backend/internal/domain"
	"github.com/1thousandframework/go-gift-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// GiftCatalog exposes the catalogue and purchase-intent operations consumed
// by the API layer.
type GiftCatalog interface {
	List(ctx context.Context, offset int) ([]domain.Gift, error)
	Get(ctx context.Context, giftID string) (*domain.Gift, error)
	CreateInvoice(ctx context.Context, buyer *domain.User, giftID, lang string) (*services.PaymentURLs, error)
	CheckInvoiceProcessed(ctx context.Context, invoiceID int64) (*domain.Action, error)
}

// GiftLedger exposes claim settlement and rank queries.
type GiftLedger interface {
	ClaimGift(ctx context.Context, receiver *domain.User, purchaseActionID, lang string) (*domain.Action, error)
}

// APIRequest is the JSON body shared by all API methods; each method reads
// the parameters it needs.
type APIRequest struct {
	UserData   string `json:"user_data"`
	ID         string `json:"id,omitempty"`
	Lang       string `json:"lang,omitempty"`
	InvoiceID  int64  `json:"invoice_id,omitempty"`
	TelegramID int64  `json:"telegram_id,omitempty"`
	GiftID     string `json:"gift_id,omitempty"`
	ActionID   string `json:"action_id,omitempty"`
	Offset     *int   `json:"offset,omitempty"`
}

// offset returns the requested page offset, or -1 when absent/invalid.
func (r *APIRequest) offset() int {
	if r.Offset == nil || *r.Offset < 0 {
		return -1
	}
	return *r.Offset
}

// apiHandler is one command in the registry. The caller is already
// authenticated and registered.
type apiHandler func(c *gin.Context, caller *domain.User, user *WebAppUser, req *APIRequest)

// Handlers groups the API endpoints and their service dependencies.
type Handlers struct {
	Gifts   GiftCatalog
	Ledger  GiftLedger
	Users   *services.UserService
	GiftSvc *services.GiftService

	// BotToken verifies WebApp init data.
	BotToken string

	registry map[string]apiHandler
}

// New constructs the handler set and its command registry.
func New(gifts *services.GiftService, ledger *services.LedgerService, users *services.UserService, botToken string) *Handlers {
	h := &Handlers{
		Gifts:    gifts,
		Ledger:   ledger,
		Users:    users,
		GiftSvc:  gifts,
		BotToken: botToken,
	}
	h.registry = map[string]apiHandler{
		"getGifts":              h.getGifts,
		"getGift":               h.getGift,
		"createInvoice":         h.createInvoice,
		"checkInvoiceProcessed": h.checkInvoiceProcessed,
		"receiveGift":           h.receiveGift,
		"getUser":               h.getUser,
		"getUserPlace":          h.getUserPlace,
		"getLeaders":            h.getLeaders,
		"getHistory":            h.getHistory,
		"getReceivedGifts":      h.getReceivedGifts,
		"getUnsentGifts":        h.getUnsentGifts,
		"getGiftRecentActions":  h.getGiftRecentActions,
	}
	return h
}

// Dispatch authenticates the request and routes it through the registry.
func (h *Handlers) Dispatch(c *gin.Context) {
	if !strings.HasPrefix(c.ContentType(), "application/json") {
		fail(c, ErrCodeJSONExpected)
		return
	}
	var req APIRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, ErrCodeJSONExpected)
		return
	}
	if req.UserData == "" {
		fail(c, ErrCodeUserDataRequired)
		return
	}
	user, valid := VerifyInitData(req.UserData, h.BotToken)
	if !valid {
		fail(c, ErrCodeAuthFailed)
		return
	}

	handler, known := h.registry[c.Param("method")]
	if !known {
		fail(c, ErrCodeNotFound)
		return
	}

	caller, err := h.Users.Ensure(c.Request.Context(), user.ID, user.FirstName, user.LastName, user.IsPremium, user.PhotoURL)
	if err != nil {
		fail(c, ErrCodeServerError)
		return
	}
	handler(c, caller, user, &req)
}

func (h *Handlers) getGifts(c *gin.Context, _ *domain.User, _ *WebAppUser, _ *APIRequest) {
	gifts, err := h.Gifts.List(c.Request.Context(), 0)
	if err != nil {
		fail(c, ErrCodeServerError)
		return
	}
	ok(c, gifts)
}

func (h *Handlers) getGift(c *gin.Context, _ *domain.User, _ *WebAppUser, req *APIRequest) {
	if req.ID == "" {
		fail(c, ErrCodeServerError)
		return
	}
	gift, err := h.Gifts.Get(c.Request.Context(), req.ID)
	if err != nil {
		if errors.Is(err, services.ErrGiftNotFound) {
			fail(c, ErrCodeNotFound)
			return
		}
		fail(c, ErrCodeServerError)
		return
	}
	ok(c, gift)
}

func (h *Handlers) createInvoice(c *gin.Context, caller *domain.User, user *WebAppUser, req *APIRequest) {
	if req.ID == "" {
		fail(c, ErrCodeServerError)
		return
	}
	urls, err := h.Gifts.CreateInvoice(c.Request.Context(), caller, req.ID, user.Lang())
	if err != nil {
		switch {
		case errors.Is(err, services.ErrGiftNotFound):
			fail(c, ErrCodeNotFound)
		case errors.Is(err, services.ErrOutOfStock):
			fail(c, ErrCodeOutOfGift)
		case errors.Is(err, services.ErrInvoiceUnavailable):
			fail(c, ErrCodeCantCreateInvoice)
		default:
			fail(c, ErrCodeServerError)
		}
		return
	}
	ok(c, urls)
}

func (h *Handlers) checkInvoiceProcessed(c *gin.Context, _ *domain.User, _ *WebAppUser, req *APIRequest) {
	if req.InvoiceID == 0 {
		fail(c, ErrCodeServerError)
		return
	}
	action, err := h.Gifts.CheckInvoiceProcessed(c.Request.Context(), req.InvoiceID)
	if err != nil {
		fail(c, ErrCodeServerError)
		return
	}
	if action == nil {
		// Poll window elapsed without settlement.
		ok(c, false)
		return
	}
	ok(c, action)
}

func (h *Handlers) receiveGift(c *gin.Context, caller *domain.User, user *WebAppUser, req *APIRequest) {
	if req.ActionID == "" {
		fail(c, ErrCodeServerError)
		return
	}
	action, err := h.Ledger.ClaimGift(c.Request.Context(), caller, req.ActionID, user.Lang())
	if err != nil {
		switch {
		case errors.Is(err, services.ErrActionNotFound):
			fail(c, ErrCodeNotFound)
		case errors.Is(err, services.ErrAlreadyClaimed):
			fail(c, ErrCodeAlreadyActivated)
		default:
			fail(c, ErrCodeServerError)
		}
		return
	}
	ok(c, action)
}

func (h *Handlers) getUser(c *gin.Context, _ *domain.User, _ *WebAppUser, req *APIRequest) {
	if req.TelegramID == 0 {
		fail(c, ErrCodeServerError)
		return
	}
	u, err := h.Users.Get(c.Request.Context(), req.TelegramID)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			fail(c, ErrCodeNotFound)
			return
		}
		fail(c, ErrCodeServerError)
		return
	}
	ok(c, u)
}

func (h *Handlers) getUserPlace(c *gin.Context, _ *domain.User, _ *WebAppUser, req *APIRequest) {
	if req.TelegramID == 0 {
		fail(c, ErrCodeServerError)
		return
	}
	place, err := h.Users.Place(c.Request.Context(), req.TelegramID)
	if err != nil {
		fail(c, ErrCodeServerError)
		return
	}
	ok(c, place)
}

func (h *Handlers) getLeaders(c *gin.Context, _ *domain.User, _ *WebAppUser, req *APIRequest) {
	offset := req.offset()
	if offset < 0 {
		fail(c, ErrCodeServerError)
		return
	}
	leaders, err := h.Users.Leaders(c.Request.Context(), offset)
	if err != nil {
		fail(c, ErrCodeServerError)
		return
	}
	ok(c, leaders)
}

func (h *Handlers) getHistory(c *gin.Context, caller *domain.User, _ *WebAppUser, req *APIRequest) {
	offset := req.offset()
	if offset < 0 {
		fail(c, ErrCodeServerError)
		return
	}
	actions, err := h.Users.History(c.Request.Context(), h.GiftSvc, caller.TelegramID, offset)
	if err != nil {
		fail(c, ErrCodeServerError)
		return
	}
	ok(c, actions)
}

func (h *Handlers) getReceivedGifts(c *gin.Context, _ *domain.User, _ *WebAppUser, req *APIRequest) {
	offset := req.offset()
	if req.TelegramID == 0 || offset < 0 {
		fail(c, ErrCodeServerError)
		return
	}
	actions, err := h.Users.Received(c.Request.Context(), h.GiftSvc, req.TelegramID, offset)
	if err != nil {
		fail(c, ErrCodeServerError)
		return
	}
	ok(c, actions)
}

func (h *Handlers) getUnsentGifts(c *gin.Context, caller *domain.User, _ *WebAppUser, req *APIRequest) {
	offset := req.offset()
	if offset < 0 {
		fail(c, ErrCodeServerError)
		return
	}
	actions, err := h.Users.Unsent(c.Request.Context(), h.GiftSvc, caller.TelegramID, offset)
	if err != nil {
		fail(c, ErrCodeServerError)
		return
	}
	ok(c, actions)
}

func (h *Handlers) getGiftRecentActions(c *gin.Context, _ *domain.User, _ *WebAppUser, req *APIRequest) {
	offset := req.offset()
	if req.GiftID == "" || offset < 0 {
		fail(c, ErrCodeServerError)
		return
	}
	actions, err := h.GiftSvc.RecentActions(c.Request.Context(), h.Users, req.GiftID, offset)
	if err != nil {
		fail(c, ErrCodeServerError)
		return
	}
	ok(c, actions)
}
