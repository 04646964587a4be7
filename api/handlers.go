package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"wishboard/domain"
)

const (
	wishesRoute          = "/api/wishes"
	photosRoute          = "/api/photos"
	headerIdempotencyKey = "Idempotency-Key"

	msgMissingText       = "Missing text"
	msgMissingIDOrStatus = "Missing id or status"
	msgMissingID         = "Missing id"
	msgInvalidStatus     = "Invalid status"
	msgDuplicate         = "Duplicate request"
)

// Options carries the optional collaborators of the HTTP API.
type Options struct {
	ListPolicy ListPolicy
	Deduper    Deduper
	Events     EventSink
	Photos     PhotoLister
	Logger     *log.Logger
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Store, opts Options) {
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	if opts.ListPolicy == "" {
		opts.ListPolicy = ListDegrade
	}

	e.GET(wishesRoute, listWishes(store, opts.ListPolicy, opts.Logger))
	e.POST(wishesRoute, createWish(store, opts.Deduper, opts.Events, opts.Logger))
	e.PUT(wishesRoute, updateWishStatus(store, opts.Events, opts.Logger))
	e.DELETE(wishesRoute, deleteWish(store, opts.Events, opts.Logger))
	if opts.Photos != nil {
		e.GET(photosRoute, listPhotos(opts.Photos))
	}
	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

// traced starts request metrics and swaps the request context for the span context.
func traced(c echo.Context, logger *log.Logger) *wishRequestMetrics {
	metrics, spanCtx := newWishRequestMetrics(c.Request().Context(), logger, c.Request().Method)
	if spanCtx != nil {
		c.SetRequest(c.Request().WithContext(spanCtx))
	}
	return metrics
}

func backendFailure(c echo.Context, msg string, err error) error {
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: msg, Details: err.Error()})
}

func listWishes(store Store, policy ListPolicy, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics := traced(c, logger)
		var storeErr error
		defer func() {
			logErr := err
			if logErr == nil {
				logErr = storeErr
			}
			metrics.Log(c.Response().Status, logErr)
		}()

		start := time.Now()
		wishes, storeErr := store.List(c.Request().Context())
		metrics.ObserveStore(time.Since(start))
		if storeErr != nil {
			metrics.SetErrorStage("store")
			if policy == ListSurface {
				return backendFailure(c, "Failed to load wishes", storeErr)
			}
			logger.WithError(storeErr).Warn("list wishes failed; serving empty board")
			wishes = []domain.Wish{}
		}
		if wishes == nil {
			wishes = []domain.Wish{}
		}
		metrics.SetWishCount(len(wishes))
		return c.JSON(http.StatusOK, wishes)
	}
}

func createWish(store Store, deduper Deduper, events EventSink, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics := traced(c, logger)
		var storeErr error
		defer func() {
			logErr := err
			if logErr == nil {
				logErr = storeErr
			}
			metrics.Log(c.Response().Status, logErr)
		}()
		ctx := c.Request().Context()

		var req createWishRequest
		if rejected, rerr := rejectBody(c, metrics, decodeBody(c, &req)); rejected {
			return rerr
		}
		text := strings.TrimSpace(req.Text)
		if text == "" {
			metrics.SetErrorStage("validate")
			return c.JSON(http.StatusBadRequest, errorResponse{Error: msgMissingText})
		}

		key := strings.TrimSpace(c.Request().Header.Get(headerIdempotencyKey))
		claimed := false
		if key != "" && deduper != nil {
			added, derr := deduper.Add(ctx, key)
			switch {
			case derr != nil:
				logger.WithError(derr).Warn("idempotency check failed; creating without it")
			case !added:
				metrics.SetErrorStage("duplicate")
				return c.JSON(http.StatusConflict, errorResponse{Error: msgDuplicate})
			default:
				claimed = true
			}
		}

		start := time.Now()
		var w domain.Wish
		w, storeErr = store.Create(ctx, text)
		metrics.ObserveStore(time.Since(start))
		if storeErr != nil {
			if claimed {
				if rerr := deduper.Remove(ctx, key); rerr != nil {
					logger.WithError(rerr).WithField("key", key).Error("idempotency rollback failed")
				}
			}
			if errors.Is(storeErr, domain.ErrEmptyText) {
				metrics.SetErrorStage("validate")
				return c.JSON(http.StatusBadRequest, errorResponse{Error: msgMissingText})
			}
			metrics.SetErrorStage("store")
			logger.WithError(storeErr).Error("create wish failed")
			return backendFailure(c, "Failed to create wish", storeErr)
		}

		publish(events, logger, newEvent(domain.EventWishCreated, w.ID, w.Text, w.Status))
		metrics.SetWishCount(1)
		return c.JSON(http.StatusCreated, w)
	}
}

func updateWishStatus(store Store, events EventSink, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics := traced(c, logger)
		var storeErr error
		defer func() {
			logErr := err
			if logErr == nil {
				logErr = storeErr
			}
			metrics.Log(c.Response().Status, logErr)
		}()

		var req updateWishRequest
		if rejected, rerr := rejectBody(c, metrics, decodeBody(c, &req)); rejected {
			return rerr
		}
		id := strings.TrimSpace(req.ID)
		if id == "" || strings.TrimSpace(req.Status) == "" {
			metrics.SetErrorStage("validate")
			return c.JSON(http.StatusBadRequest, errorResponse{Error: msgMissingIDOrStatus})
		}
		status, perr := domain.ParseStatus(req.Status)
		if perr != nil {
			metrics.SetErrorStage("validate")
			return c.JSON(http.StatusBadRequest, errorResponse{Error: msgInvalidStatus})
		}

		start := time.Now()
		storeErr = store.UpdateStatus(c.Request().Context(), id, status)
		metrics.ObserveStore(time.Since(start))
		if storeErr != nil {
			metrics.SetErrorStage("store")
			logger.WithError(storeErr).WithField("id", id).Error("update wish status failed")
			return backendFailure(c, "Failed to update wish", storeErr)
		}

		publish(events, logger, newEvent(domain.EventWishStatusChanged, id, "", status))
		return c.JSON(http.StatusOK, okResponse{OK: true})
	}
}

func deleteWish(store Store, events EventSink, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics := traced(c, logger)
		var storeErr error
		defer func() {
			logErr := err
			if logErr == nil {
				logErr = storeErr
			}
			metrics.Log(c.Response().Status, logErr)
		}()

		var req deleteWishRequest
		if rejected, rerr := rejectBody(c, metrics, decodeBody(c, &req)); rejected {
			return rerr
		}
		id := strings.TrimSpace(req.ID)
		if id == "" {
			metrics.SetErrorStage("validate")
			return c.JSON(http.StatusBadRequest, errorResponse{Error: msgMissingID})
		}

		start := time.Now()
		storeErr = store.Delete(c.Request().Context(), id)
		metrics.ObserveStore(time.Since(start))
		if storeErr != nil {
			metrics.SetErrorStage("store")
			logger.WithError(storeErr).WithField("id", id).Error("delete wish failed")
			return backendFailure(c, "Failed to delete wish", storeErr)
		}

		publish(events, logger, newEvent(domain.EventWishDeleted, id, "", ""))
		return c.JSON(http.StatusOK, okResponse{OK: true})
	}
}

func listPhotos(photos PhotoLister) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, photos.List())
	}
}

func newEvent(typ, wishID, text string, status domain.Status) domain.Event {
	return domain.Event{
		ID:     uuid.NewString(),
		Type:   typ,
		WishID: wishID,
		Text:   text,
		Status: status,
		Time:   time.Now().UnixMilli(),
	}
}

func publish(events EventSink, logger *log.Logger, ev domain.Event) {
	if events == nil {
		return
	}
	if !events.Send(ev) {
		logger.WithFields(log.Fields{"type": ev.Type, "wish_id": ev.WishID}).Warn("event buffer saturated; dropping wish event")
	}
}
