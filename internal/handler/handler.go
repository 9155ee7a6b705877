// Package handler содержит HTTP-обработчики API маркетплейса услуг.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/servimarket-system/internal/engine"
	"github.com/mmeshcher/servimarket-system/internal/middleware"
	"github.com/mmeshcher/servimarket-system/internal/model"
	"github.com/mmeshcher/servimarket-system/internal/repository"
	"github.com/mmeshcher/servimarket-system/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, login, password, name string, role model.Role) (*model.User, error)
	AuthenticateUser(ctx context.Context, login, password string) (*model.User, error)
	GetUser(ctx context.Context, id string) (*model.User, error)
	CreateService(ctx context.Context, requesterID string, draft service.ServiceDraft) (*model.Service, error)
	GetService(ctx context.Context, id string) (*model.Service, error)
	ListServices(ctx context.Context) ([]model.Service, error)
	SubmitQuote(ctx context.Context, actorID, serviceID string, draft service.QuoteDraft) (*model.Quote, error)
	EditQuote(ctx context.Context, actorID, serviceID, quoteID string, patch model.QuotePatch) (*model.Quote, error)
	WithdrawQuote(ctx context.Context, actorID, serviceID, quoteID string) error
	BeginEvaluation(ctx context.Context, actorID, serviceID string) (*model.Service, error)
	SelectQuote(ctx context.Context, actorID, serviceID, quoteID string) (*model.Service, error)
	CompleteService(ctx context.Context, actorID, serviceID string, rating *int) (*model.Service, error)
	CompareQuotes(ctx context.Context, serviceID string, criterion engine.Criterion) ([]model.Quote, error)
	AssignedProviderName(ctx context.Context, serviceID string) (string, error)
	CreateSupplyOffer(ctx context.Context, supplierID, name, category string, priceCents int64) (*model.SupplyOffer, error)
	ListSupplyOffers(ctx context.Context) ([]model.SupplyOffer, error)
}

// Handler реализует HTTP-обработчики API маркетплейса услуг.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

// Цены в API представлены десятичными числами, внутри — целыми копейками.
// Конвертация разбирает строковый литерал числа напрямую, минуя плавающую
// точку: float64 теряет копейки на больших суммах.

func centsFromDecimal(raw json.Number) (int64, error) {
	s := raw.String()
	if s == "" {
		return 0, nil
	}

	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	intPart, fracPart, _ := strings.Cut(s, ".")
	switch len(fracPart) {
	case 0:
		fracPart = "00"
	case 1:
		fracPart += "0"
	case 2:
	default:
		return 0, fmt.Errorf("price %s: at most two decimal places", raw)
	}

	whole, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("price %s: %w", raw, err)
	}
	frac, err := strconv.ParseInt(fracPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("price %s: %w", raw, err)
	}

	if whole > (math.MaxInt64-frac)/100 {
		return 0, fmt.Errorf("price %s: out of range", raw)
	}

	cents := whole*100 + frac
	if neg {
		cents = -cents
	}
	return cents, nil
}

func decimalFromCents(c int64) json.Number {
	sign := ""
	if c < 0 {
		sign = "-"
		c = -c
	}
	return json.Number(fmt.Sprintf("%s%d.%02d", sign, c/100, c%100))
}

// writeTransitionError переводит ошибки переходов жизненного цикла в HTTP-статусы.
func (h *Handler) writeTransitionError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, engine.ErrValidation):
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
	case errors.Is(err, engine.ErrNotFound),
		errors.Is(err, repository.ErrServiceNotFound),
		errors.Is(err, repository.ErrUserNotFound):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	case errors.Is(err, engine.ErrServiceLocked),
		errors.Is(err, engine.ErrInvalidState),
		service.IsConflict(err):
		http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
	default:
		h.logger.Error(op+" error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

type registerRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

type userResponse struct {
	ID    string `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	role := model.Role(req.Role)
	if req.Login == "" || req.Password == "" || !role.IsValid() {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	u, err := h.service.RegisterUser(r.Context(), req.Login, req.Password, req.Name, role)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("register user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, middleware.Actor{UserID: u.ID, Role: u.Role})
	writeJSON(w, http.StatusOK, userResponse{
		ID:    u.ID,
		Login: u.Login,
		Name:  u.Name,
		Role:  string(u.Role),
	})
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Login выполняет аутентификацию пользователя и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	u, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) || errors.Is(err, repository.ErrUserNotFound) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, middleware.Actor{UserID: u.ID, Role: u.Role})
	w.WriteHeader(http.StatusOK)
}

type createServiceRequest struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Category       string   `json:"category"`
	Location       string   `json:"location"`
	Date           string   `json:"date"`
	RequiredSupply []string `json:"required_supply"`
}

type quoteResponse struct {
	ID           string      `json:"id"`
	ServiceID    string      `json:"service_id"`
	ProviderID   string      `json:"provider_id"`
	Price        json.Number `json:"price"`
	DurationDays *int        `json:"duration_days,omitempty"`
	Deadline     string      `json:"deadline,omitempty"`
	Notes        string      `json:"notes,omitempty"`
	CreatedAt    string      `json:"created_at"`
}

type serviceResponse struct {
	ID               string          `json:"id"`
	RequesterID      string          `json:"requester_id"`
	Status           string          `json:"status"`
	Title            string          `json:"title"`
	Description      string          `json:"description,omitempty"`
	Category         string          `json:"category,omitempty"`
	Location         string          `json:"location,omitempty"`
	Date             string          `json:"date,omitempty"`
	RequiredSupply   []string        `json:"required_supply,omitempty"`
	Quotes           []quoteResponse `json:"quotes"`
	SelectedQuoteID  string          `json:"selected_quote_id,omitempty"`
	AssignedProvider string          `json:"assigned_provider,omitempty"`
	Rating           *int            `json:"rating,omitempty"`
	RatingLabel      string          `json:"rating_label,omitempty"`
	CreatedAt        string          `json:"created_at"`
}

func toQuoteResponse(q model.Quote) quoteResponse {
	return quoteResponse{
		ID:           q.ID,
		ServiceID:    q.ServiceID,
		ProviderID:   q.ProviderID,
		Price:        decimalFromCents(q.PriceCents),
		DurationDays: q.DurationDays,
		Deadline:     q.Deadline,
		Notes:        q.Notes,
		CreatedAt:    q.CreatedAt.Format(time.RFC3339),
	}
}

func toServiceResponse(svc model.Service) serviceResponse {
	quotes := make([]quoteResponse, 0, len(svc.Quotes))
	for _, q := range svc.Quotes {
		quotes = append(quotes, toQuoteResponse(q))
	}

	resp := serviceResponse{
		ID:              svc.ID,
		RequesterID:     svc.RequesterID,
		Status:          string(svc.Status),
		Title:           svc.Title,
		Description:     svc.Description,
		Category:        svc.Category,
		Location:        svc.Location,
		Date:            svc.Date,
		RequiredSupply:  svc.RequiredSupply,
		Quotes:          quotes,
		SelectedQuoteID: svc.SelectedQuoteID,
		Rating:          svc.Rating,
		CreatedAt:       svc.CreatedAt.Format(time.RFC3339),
	}
	if svc.Rating != nil {
		resp.RatingLabel = engine.RatingLabel(*svc.Rating)
	}
	return resp
}

// CreateService публикует новую заявку от имени текущего заказчика.
func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req createServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Title == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	svc, err := h.service.CreateService(r.Context(), actor.UserID, service.ServiceDraft{
		Title:          req.Title,
		Description:    req.Description,
		Category:       req.Category,
		Location:       req.Location,
		Date:           req.Date,
		RequiredSupply: req.RequiredSupply,
	})
	if err != nil {
		h.writeTransitionError(w, err, "create service")
		return
	}

	writeJSON(w, http.StatusCreated, toServiceResponse(*svc))
}

// ListServices возвращает список всех заявок.
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.service.ListServices(r.Context())
	if err != nil {
		h.logger.Error("list services error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(services) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]serviceResponse, 0, len(services))
	for _, svc := range services {
		resp = append(resp, toServiceResponse(svc))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetService возвращает заявку со списком предложений и именем назначенного исполнителя.
func (h *Handler) GetService(w http.ResponseWriter, r *http.Request) {
	serviceID := pathParam(r, "serviceID")

	svc, err := h.service.GetService(r.Context(), serviceID)
	if err != nil {
		h.writeTransitionError(w, err, "get service")
		return
	}

	resp := toServiceResponse(*svc)
	if svc.SelectedQuoteID != "" {
		name, err := h.service.AssignedProviderName(r.Context(), serviceID)
		if err != nil {
			h.logger.Error("assigned provider error", zap.Error(err), zap.String("serviceID", serviceID))
		} else {
			resp.AssignedProvider = name
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

type quoteRequest struct {
	Price        json.Number `json:"price"`
	DurationDays *int        `json:"duration_days,omitempty"`
	Deadline     string      `json:"deadline,omitempty"`
	Notes        string      `json:"notes,omitempty"`
}

// SubmitQuote добавляет предложение текущего исполнителя к заявке.
func (h *Handler) SubmitQuote(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	cents, err := centsFromDecimal(req.Price)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	q, err := h.service.SubmitQuote(r.Context(), actor.UserID, pathParam(r, "serviceID"), service.QuoteDraft{
		PriceCents:   cents,
		DurationDays: req.DurationDays,
		Deadline:     req.Deadline,
		Notes:        req.Notes,
	})
	if err != nil {
		h.writeTransitionError(w, err, "submit quote")
		return
	}

	writeJSON(w, http.StatusCreated, toQuoteResponse(*q))
}

type quotePatchRequest struct {
	Price        *json.Number `json:"price,omitempty"`
	DurationDays *int         `json:"duration_days,omitempty"`
	Deadline     *string      `json:"deadline,omitempty"`
	Notes        *string      `json:"notes,omitempty"`
}

// EditQuote изменяет изменяемые поля предложения текущего исполнителя.
func (h *Handler) EditQuote(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req quotePatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	patch := model.QuotePatch{
		DurationDays: req.DurationDays,
		Deadline:     req.Deadline,
		Notes:        req.Notes,
	}
	if req.Price != nil {
		cents, err := centsFromDecimal(*req.Price)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		patch.PriceCents = &cents
	}

	q, err := h.service.EditQuote(r.Context(), actor.UserID, pathParam(r, "serviceID"), pathParam(r, "quoteID"), patch)
	if err != nil {
		h.writeTransitionError(w, err, "edit quote")
		return
	}

	writeJSON(w, http.StatusOK, toQuoteResponse(*q))
}

// WithdrawQuote отзывает предложение текущего исполнителя.
func (h *Handler) WithdrawQuote(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	err := h.service.WithdrawQuote(r.Context(), actor.UserID, pathParam(r, "serviceID"), pathParam(r, "quoteID"))
	if err != nil {
		h.writeTransitionError(w, err, "withdraw quote")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListQuotes возвращает предложения заявки, упорядоченные по критерию sort.
func (h *Handler) ListQuotes(w http.ResponseWriter, r *http.Request) {
	criterion := engine.Criterion(r.URL.Query().Get("sort"))
	if criterion == "" {
		criterion = engine.CriterionPrice
	}

	quotes, err := h.service.CompareQuotes(r.Context(), pathParam(r, "serviceID"), criterion)
	if err != nil {
		h.writeTransitionError(w, err, "list quotes")
		return
	}

	resp := make([]quoteResponse, 0, len(quotes))
	for _, q := range quotes {
		resp = append(resp, toQuoteResponse(q))
	}

	writeJSON(w, http.StatusOK, resp)
}

// BeginEvaluation переводит заявку текущего заказчика в статус сравнения предложений.
func (h *Handler) BeginEvaluation(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	svc, err := h.service.BeginEvaluation(r.Context(), actor.UserID, pathParam(r, "serviceID"))
	if err != nil {
		h.writeTransitionError(w, err, "begin evaluation")
		return
	}

	writeJSON(w, http.StatusOK, toServiceResponse(*svc))
}

type selectionRequest struct {
	QuoteID string `json:"quote_id"`
}

// SelectQuote выбирает предложение и назначает исполнителя на заявку.
func (h *Handler) SelectQuote(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req selectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.QuoteID == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	svc, err := h.service.SelectQuote(r.Context(), actor.UserID, pathParam(r, "serviceID"), req.QuoteID)
	if err != nil {
		h.writeTransitionError(w, err, "select quote")
		return
	}

	writeJSON(w, http.StatusOK, toServiceResponse(*svc))
}

type completionRequest struct {
	Rating *int `json:"rating,omitempty"`
}

// CompleteService завершает назначенную заявку текущего заказчика,
// при наличии оценки обновляя репутацию исполнителя.
func (h *Handler) CompleteService(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req completionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	svc, err := h.service.CompleteService(r.Context(), actor.UserID, pathParam(r, "serviceID"), req.Rating)
	if err != nil {
		h.writeTransitionError(w, err, "complete service")
		return
	}

	writeJSON(w, http.StatusOK, toServiceResponse(*svc))
}

type providerResponse struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Role          string  `json:"role"`
	RatingSum     int64   `json:"rating_sum"`
	RatingCount   int64   `json:"rating_count"`
	AverageRating float64 `json:"average_rating"`
	RatingLabel   string  `json:"rating_label"`
}

// GetProvider возвращает публичный профиль исполнителя с накопленной репутацией.
func (h *Handler) GetProvider(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.GetUser(r.Context(), pathParam(r, "providerID"))
	if err != nil {
		h.writeTransitionError(w, err, "get provider")
		return
	}

	avg := u.Reputation.Average()
	writeJSON(w, http.StatusOK, providerResponse{
		ID:            u.ID,
		Name:          u.Name,
		Role:          string(u.Role),
		RatingSum:     u.Reputation.RatingSum,
		RatingCount:   u.Reputation.RatingCount,
		AverageRating: avg,
		RatingLabel:   engine.RatingLabel(int(math.Round(avg))),
	})
}

type supplyRequest struct {
	Name     string      `json:"name"`
	Category string      `json:"category"`
	Price    json.Number `json:"price"`
}

type supplyResponse struct {
	ID         string      `json:"id"`
	SupplierID string      `json:"supplier_id"`
	Name       string      `json:"name"`
	Category   string      `json:"category"`
	Price      json.Number `json:"price"`
	CreatedAt  string      `json:"created_at"`
}

// CreateSupply публикует предложение материалов от текущего поставщика.
func (h *Handler) CreateSupply(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req supplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Name == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	cents, err := centsFromDecimal(req.Price)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	offer, err := h.service.CreateSupplyOffer(r.Context(), actor.UserID, req.Name, req.Category, cents)
	if err != nil {
		h.writeTransitionError(w, err, "create supply offer")
		return
	}

	writeJSON(w, http.StatusCreated, supplyResponse{
		ID:         offer.ID,
		SupplierID: offer.SupplierID,
		Name:       offer.Name,
		Category:   offer.Category,
		Price:      decimalFromCents(offer.PriceCents),
		CreatedAt:  offer.CreatedAt.Format(time.RFC3339),
	})
}

// ListSupplies возвращает все предложения материалов.
func (h *Handler) ListSupplies(w http.ResponseWriter, r *http.Request) {
	offers, err := h.service.ListSupplyOffers(r.Context())
	if err != nil {
		h.logger.Error("list supply offers error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(offers) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]supplyResponse, 0, len(offers))
	for _, o := range offers {
		resp = append(resp, supplyResponse{
			ID:         o.ID,
			SupplierID: o.SupplierID,
			Name:       o.Name,
			Category:   o.Category,
			Price:      decimalFromCents(o.PriceCents),
			CreatedAt:  o.CreatedAt.Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}
