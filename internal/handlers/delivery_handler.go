package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"deliveryflow/internal/collection"
	"deliveryflow/internal/orders"
	"deliveryflow/internal/refdata"
	"deliveryflow/internal/validation"
	"deliveryflow/internal/workflow"
)

// HandlerConfig groups dependencies for the delivery routes.
type HandlerConfig struct {
	Store          *orders.Store
	Flow           *collection.Flow
	Refs           *refdata.Cache
	Poller         *orders.Poller
	CommissionRate float64
	Log            *logrus.Entry
}

const driverHeader = "X-Driver-ID"

// orderView is one row of the driver's order list.
type orderView struct {
	ID              string   `json:"id"`
	Bucket          string   `json:"bucket"`
	Status          string   `json:"status"`
	StatusLabel     string   `json:"statusLabel"`
	Customer        string   `json:"customer"`
	CustomerAddress string   `json:"customerAddress,omitempty"`
	CustomerPhone   string   `json:"customerPhone,omitempty"`
	Total           float64  `json:"total"`
	Commission      float64  `json:"commission"`
	ElapsedMinutes  *int     `json:"elapsedMinutes,omitempty"`
	Actions         []string `json:"actions"`
}

type sessionView struct {
	OrderID         string  `json:"orderId"`
	State           string  `json:"state"`
	Amount          float64 `json:"amount"`
	Total           float64 `json:"total"`
	ValidationError string  `json:"validationError,omitempty"`
}

// RegisterDeliveryRoutes registers the driver dashboard API.
func RegisterDeliveryRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()

	grp := r.Group("/delivery")
	grp.Use(requireDriver())

	grp.GET("/orders", func(c *gin.Context) {
		driver := c.GetString("driver")
		now := time.Now()

		classified := workflow.ForDriver(cfg.Store.Snapshot(), driver)
		views := make([]orderView, 0, len(classified))
		for _, cl := range classified {
			views = append(views, toView(cl, cfg, now))
		}

		resp := gin.H{"orders": views}
		if err := cfg.Store.LastError(); err != nil {
			// The snapshot is the last known good one; the UI shows a
			// dismissible banner, not an empty list.
			resp["stale"] = true
			resp["fetchError"] = err.Error()
		}
		c.JSON(http.StatusOK, resp)
	})

	grp.POST("/orders/:id/start", func(c *gin.Context) {
		driver := c.GetString("driver")
		id := c.Param("id")

		o, ok := cfg.Store.Get(id)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found"})
			return
		}
		if b := workflow.Classify(o, driver); b != workflow.BucketUnclaimed {
			c.JSON(http.StatusConflict, gin.H{"error": "not_claimable", "bucket": string(b)})
			return
		}

		updated, err := cfg.Store.StartDelivery(c.Request.Context(), id, driver)
		if err != nil {
			switch {
			case errors.Is(err, orders.ErrStartInFlight):
				c.JSON(http.StatusConflict, gin.H{"error": "start_in_flight"})
			case errors.Is(err, orders.ErrNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found"})
			default:
				cfg.Log.WithError(err).WithField("order", id).Error("start delivery failed")
				c.JSON(http.StatusBadGateway, gin.H{"error": "update_failed"})
			}
			return
		}

		c.JSON(http.StatusOK, toView(workflow.Classified{
			Order:   updated,
			Bucket:  workflow.Classify(updated, driver),
			Actions: workflow.Actions(workflow.Classify(updated, driver)),
		}, cfg, time.Now()))
	})

	grp.POST("/orders/:id/collection", func(c *gin.Context) {
		driver := c.GetString("driver")
		sess, err := cfg.Flow.Begin(c.Param("id"), driver)
		if err != nil {
			writeFlowError(c, err)
			return
		}
		c.JSON(http.StatusOK, toSessionView(sess))
	})

	grp.PUT("/orders/:id/collection/amount", func(c *gin.Context) {
		var req validation.EnterAmountRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		id := c.Param("id")

		if _, err := cfg.Flow.EnterAmount(id, req.Amount); err != nil {
			writeFlowError(c, err)
			return
		}
		sess, err := cfg.Flow.SubmitAmount(id)
		if err != nil {
			if errors.Is(err, collection.ErrAmountMismatch) {
				c.JSON(http.StatusUnprocessableEntity, gin.H{
					"error":   collection.CodeAmountMismatch,
					"session": toSessionView(sess),
				})
				return
			}
			writeFlowError(c, err)
			return
		}
		c.JSON(http.StatusOK, toSessionView(sess))
	})

	grp.POST("/orders/:id/collection/back", func(c *gin.Context) {
		sess, err := cfg.Flow.Back(c.Param("id"))
		if err != nil {
			writeFlowError(c, err)
			return
		}
		c.JSON(http.StatusOK, toSessionView(sess))
	})

	grp.POST("/orders/:id/collection/confirm", func(c *gin.Context) {
		driver := c.GetString("driver")
		o, err := cfg.Flow.Confirm(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeFlowError(c, err)
			return
		}
		b := workflow.Classify(o, driver)
		c.JSON(http.StatusOK, toView(workflow.Classified{Order: o, Bucket: b, Actions: workflow.Actions(b)}, cfg, time.Now()))
	})

	grp.POST("/refresh", func(c *gin.Context) {
		if err := cfg.Poller.RefreshNow(c.Request.Context()); err != nil {
			// Previous data is retained; tell the client the refresh missed.
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "refresh_failed", "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "refreshed"})
	})
}

// requireDriver extracts the driver identity header. The auth provider in
// front of this service is responsible for its integrity.
func requireDriver() gin.HandlerFunc {
	return func(c *gin.Context) {
		driver := c.GetHeader(driverHeader)
		if driver == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing_driver_id"})
			return
		}
		c.Set("driver", driver)
		c.Next()
	}
}

func toView(cl workflow.Classified, cfg HandlerConfig, now time.Time) orderView {
	o := cl.Order
	view := orderView{
		ID:          o.ID,
		Bucket:      string(cl.Bucket),
		Status:      o.Status,
		StatusLabel: workflow.StatusLabel(o.Status),
		Total:       o.Total,
		Commission:  workflow.Commission(o.Total, cfg.CommissionRate),
		Customer:    cfg.Refs.CustomerName(o.CustomerRef),
	}
	if cust, ok := cfg.Refs.Customer(o.CustomerRef); ok {
		view.CustomerAddress = cust.Address
		view.CustomerPhone = cust.Phone
	}
	if mins, ok := workflow.ElapsedMinutes(o, now); ok {
		view.ElapsedMinutes = &mins
	}
	for _, a := range cl.Actions {
		view.Actions = append(view.Actions, string(a))
	}
	return view
}

func toSessionView(s collection.Session) sessionView {
	return sessionView{
		OrderID:         s.OrderID,
		State:           string(s.State),
		Amount:          s.Amount,
		Total:           s.Total,
		ValidationError: s.ValidationError,
	}
}

func writeFlowError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, orders.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found"})
	case errors.Is(err, collection.ErrNoSession):
		c.JSON(http.StatusNotFound, gin.H{"error": "no_collection_session"})
	case errors.Is(err, collection.ErrAlreadyCompleted):
		c.JSON(http.StatusConflict, gin.H{"error": "already_completed"})
	case errors.Is(err, collection.ErrNotCollectable):
		c.JSON(http.StatusConflict, gin.H{"error": "not_collectable"})
	case errors.Is(err, collection.ErrProcessing):
		c.JSON(http.StatusConflict, gin.H{"error": "processing"})
	case errors.Is(err, collection.ErrWrongState):
		c.JSON(http.StatusConflict, gin.H{"error": "wrong_state"})
	case errors.Is(err, collection.ErrAmountMismatch):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": collection.CodeAmountMismatch})
	case errors.Is(err, collection.ErrPaymentRejected):
		c.JSON(http.StatusBadGateway, gin.H{"error": collection.CodePaymentFailed})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": "update_failed", "msg": err.Error()})
	}
}
