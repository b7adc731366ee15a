// Package http exposes the workspace over a Huma REST API. The surface
// mirrors the workflow: listings are read models, writes go through workflow
// events so every guard and observer applies to remote callers too.
package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/tallyiq/internal/app"
	"github.com/neomorfeo/tallyiq/internal/domain"
)

// ConsumerResponse is the API representation of a decorated consumer.
type ConsumerResponse struct {
	ID            string  `json:"id" doc:"Unique identifier"`
	Name          string  `json:"name" doc:"Display name"`
	TypeID        string  `json:"type_id,omitempty" doc:"Consumer type"`
	TypeName      string  `json:"type_name,omitempty" doc:"Consumer type name"`
	IBAN          string  `json:"iban,omitempty" doc:"Bank account for billing"`
	Show          bool    `json:"show" doc:"Visible in pickers"`
	SpendingLimit float64 `json:"spending_limit" doc:"Per-occasion limit in euros, 0 is unlimited"`
	OrderCount    int     `json:"order_count" doc:"Orders on the active occasion"`
	Total         float64 `json:"total" doc:"Spent on the active occasion"`
	WithinLimit   bool    `json:"within_limit" doc:"Whether another order fits the limit"`
}

// ProductResponse is the API representation of a product.
type ProductResponse struct {
	ID    string  `json:"id" doc:"Unique identifier"`
	Title string  `json:"title" doc:"Display title"`
	Price float64 `json:"price" doc:"Unit price in euros"`
	Show  bool    `json:"show" doc:"Visible in pickers"`
}

// OccasionResponse is the API representation of an occasion.
type OccasionResponse struct {
	ID     string `json:"id" doc:"Unique identifier"`
	Title  string `json:"title" doc:"Display title"`
	Date   string `json:"date" doc:"Occasion date (ISO 8601)"`
	Closed bool   `json:"closed" doc:"No longer accepts orders"`
	Active bool   `json:"active" doc:"Standing context for new orders"`
}

// OrderResponse is the API representation of a decorated order.
type OrderResponse struct {
	ID           string  `json:"id" doc:"Unique identifier"`
	ConsumerID   string  `json:"consumer_id" doc:"Billed consumer"`
	ConsumerName string  `json:"consumer_name,omitempty" doc:"Billed consumer name"`
	OccasionID   string  `json:"occasion_id" doc:"Occasion the order belongs to"`
	CreatedAt    string  `json:"created_at" doc:"Creation timestamp (ISO 8601)"`
	Total        float64 `json:"total" doc:"Order total in euros"`
	Quantity     int     `json:"quantity" doc:"Total units on the order"`
	Locked       bool    `json:"locked" doc:"Past the edit window"`
}

// FeedbackResponse is the API representation of a feedback item.
type FeedbackResponse struct {
	ID      string `json:"id" doc:"Feedback identifier"`
	IsError bool   `json:"is_error" doc:"Blocks submission when true"`
	Message string `json:"message" doc:"Localized message"`
	Field   string `json:"field,omitempty" doc:"Field the message refers to"`
}

// ReceiptLineResponse is one line of the receipt being composed.
type ReceiptLineResponse struct {
	ProductID string  `json:"product_id" doc:"Product on the line"`
	Title     string  `json:"title,omitempty" doc:"Product title"`
	Quantity  int     `json:"quantity" doc:"Units on the line"`
	Price     float64 `json:"price" doc:"Unit price in euros"`
}

const timeFormat = "2006-01-02T15:04:05Z"

func toFeedbackResponse(items []domain.FeedbackItem) []FeedbackResponse {
	out := make([]FeedbackResponse, len(items))
	for i, f := range items {
		out[i] = FeedbackResponse{ID: f.ID, IsError: f.IsError, Message: f.Message, Field: f.Field}
	}
	return out
}

// --- Workflow state ---

type GetStateOutput struct {
	Body struct {
		State string `json:"state" doc:"Current workflow state"`
	}
}

// --- Event dispatch ---

type DispatchEventInput struct {
	Body struct {
		Event         string `json:"event" doc:"Workflow event to trigger"`
		ID            string `json:"id,omitempty" doc:"Target item for selection events"`
		CreateAnother bool   `json:"create_another,omitempty" doc:"Stay in create mode after saving a product"`
	}
}

type DispatchEventOutput struct {
	Body struct {
		State string `json:"state" doc:"Workflow state after the event"`
	}
}

// --- Listings ---

type ListConsumersOutput struct {
	Body []ConsumerResponse
}

type ListProductsOutput struct {
	Body []ProductResponse
}

type ListOccasionsOutput struct {
	Body []OccasionResponse
}

type ListOrdersOutput struct {
	Body []OrderResponse
}

// --- Active item editing ---

type PatchActiveInput struct {
	Body map[string]any `doc:"Partial field update for the item being edited"`
}

type PatchActiveOutput struct {
	Body struct {
		Feedback    []FeedbackResponse `json:"feedback" doc:"Validation results"`
		Submittable bool               `json:"submittable" doc:"Whether the edit can be saved"`
	}
}

// --- Receipt ---

type GetReceiptOutput struct {
	Body struct {
		Lines       []ReceiptLineResponse `json:"lines" doc:"Composed lines"`
		Total       float64               `json:"total" doc:"Receipt total in euros"`
		Submittable bool                  `json:"submittable" doc:"Whether the receipt can be submitted"`
	}
}

type StartReceiptInput struct {
	Body struct {
		ConsumerID string `json:"consumer_id" minLength:"1" doc:"Consumer to bill"`
	}
}

type StartReceiptOutput struct {
	Body struct {
		State string `json:"state" doc:"Workflow state after starting"`
	}
}

type ReceiptLineInput struct {
	Body struct {
		ProductID string `json:"product_id" minLength:"1" doc:"Product to change"`
		Op        string `json:"op" enum:"increment,decrement" doc:"Direction of the change"`
		Quantity  int    `json:"quantity,omitempty" doc:"Units to add or remove, defaults to 1"`
	}
}

type ReceiptLineOutput struct {
	Body struct {
		Lines []ReceiptLineResponse `json:"lines" doc:"Lines after the change"`
		Total float64               `json:"total" doc:"Receipt total in euros"`
	}
}

// Register adds all workspace API routes to the Huma API.
func Register(api huma.API, ws *app.Workspace) {
	huma.Register(api, huma.Operation{
		OperationID: "get-state",
		Method:      http.MethodGet,
		Path:        "/api/v1/state",
		Summary:     "Get the current workflow state",
		Tags:        []string{"Workflow"},
	}, func(ctx context.Context, _ *struct{}) (*GetStateOutput, error) {
		out := &GetStateOutput{}
		out.Body.State = string(ws.Workflow.Current())
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "dispatch-event",
		Method:      http.MethodPost,
		Path:        "/api/v1/events",
		Summary:     "Trigger a workflow event",
		Tags:        []string{"Workflow"},
	}, func(ctx context.Context, input *DispatchEventInput) (*DispatchEventOutput, error) {
		if err := dispatch(ctx, ws, input); err != nil {
			return nil, toHumaError(err)
		}
		out := &DispatchEventOutput{}
		out.Body.State = string(ws.Workflow.Current())
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-consumers",
		Method:      http.MethodGet,
		Path:        "/api/v1/consumers",
		Summary:     "List consumers with order stats",
		Tags:        []string{"Catalog"},
	}, func(ctx context.Context, _ *struct{}) (*ListConsumersOutput, error) {
		listing := ws.Consumers.Listing()
		resp := make([]ConsumerResponse, len(listing))
		for i, c := range listing {
			resp[i] = ConsumerResponse{
				ID:            c.ID,
				Name:          c.Name,
				TypeID:        c.TypeID,
				IBAN:          c.IBAN,
				Show:          c.Show,
				SpendingLimit: c.SpendingLimit,
				OrderCount:    c.Stats.OrderCount,
				Total:         c.Stats.Total,
				WithinLimit:   c.WithinLimit,
			}
			if c.Type != nil {
				resp[i].TypeName = c.Type.Name
			}
		}
		return &ListConsumersOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-products",
		Method:      http.MethodGet,
		Path:        "/api/v1/products",
		Summary:     "List products",
		Tags:        []string{"Catalog"},
	}, func(ctx context.Context, _ *struct{}) (*ListProductsOutput, error) {
		listing := ws.Products.Listing()
		resp := make([]ProductResponse, len(listing))
		for i, p := range listing {
			resp[i] = ProductResponse{ID: p.ID, Title: p.Title, Price: p.Price, Show: p.Show}
		}
		return &ListProductsOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-occasions",
		Method:      http.MethodGet,
		Path:        "/api/v1/occasions",
		Summary:     "List occasions",
		Tags:        []string{"Catalog"},
	}, func(ctx context.Context, _ *struct{}) (*ListOccasionsOutput, error) {
		active, hasActive := ws.Occasions.ActiveOccasion()
		items := ws.Occasions.Items()
		resp := make([]OccasionResponse, len(items))
		for i, o := range items {
			resp[i] = OccasionResponse{
				ID:     o.ID,
				Title:  o.Title,
				Date:   o.Date.Format(timeFormat),
				Closed: o.Closed,
				Active: hasActive && o.ID == active.ID,
			}
		}
		return &ListOccasionsOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-orders",
		Method:      http.MethodGet,
		Path:        "/api/v1/orders",
		Summary:     "List orders for the active occasion",
		Tags:        []string{"Orders"},
	}, func(ctx context.Context, _ *struct{}) (*ListOrdersOutput, error) {
		listing := ws.Orders.Listing()
		resp := make([]OrderResponse, len(listing))
		for i, o := range listing {
			resp[i] = OrderResponse{
				ID:         o.ID,
				ConsumerID: o.ConsumerID,
				OccasionID: o.OccasionID,
				CreatedAt:  o.CreatedAt.Format(timeFormat),
				Total:      o.Total,
				Quantity:   o.Quantity,
				Locked:     o.Locked,
			}
			if o.Consumer != nil {
				resp[i].ConsumerName = o.Consumer.Name
			}
		}
		return &ListOrdersOutput{Body: resp}, nil
	})

	registerPatchActive(api, "consumers", func(patch map[string]any) ([]domain.FeedbackItem, bool) {
		ws.Consumers.PatchActive(patch)
		return ws.Consumers.Feedback(), ws.Consumers.Submittable()
	})
	registerPatchActive(api, "products", func(patch map[string]any) ([]domain.FeedbackItem, bool) {
		ws.Products.PatchActive(patch)
		return ws.Products.Feedback(), ws.Products.Submittable()
	})
	registerPatchActive(api, "occasions", func(patch map[string]any) ([]domain.FeedbackItem, bool) {
		ws.Occasions.PatchActive(patch)
		return ws.Occasions.Feedback(), ws.Occasions.Submittable()
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-receipt",
		Method:      http.MethodGet,
		Path:        "/api/v1/receipt",
		Summary:     "Get the receipt being composed",
		Tags:        []string{"Receipt"},
	}, func(ctx context.Context, _ *struct{}) (*GetReceiptOutput, error) {
		out := &GetReceiptOutput{}
		out.Body.Lines = receiptLines(ws)
		out.Body.Total = ws.Receipt.Total()
		out.Body.Submittable = ws.Receipt.IsSubmittable()
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "start-receipt",
		Method:      http.MethodPost,
		Path:        "/api/v1/receipt",
		Summary:     "Start composing a receipt for a consumer",
		Tags:        []string{"Receipt"},
	}, func(ctx context.Context, input *StartReceiptInput) (*StartReceiptOutput, error) {
		if err := ws.Receipt.Start(ctx, input.Body.ConsumerID); err != nil {
			return nil, toHumaError(err)
		}
		out := &StartReceiptOutput{}
		out.Body.State = string(ws.Workflow.Current())
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "change-receipt-line",
		Method:      http.MethodPost,
		Path:        "/api/v1/receipt/lines",
		Summary:     "Add or remove units on a receipt line",
		Tags:        []string{"Receipt"},
	}, func(ctx context.Context, input *ReceiptLineInput) (*ReceiptLineOutput, error) {
		var err error
		switch input.Body.Op {
		case "decrement":
			err = ws.Receipt.DecrementBy(ctx, input.Body.ProductID, input.Body.Quantity)
		default:
			err = ws.Receipt.IncrementBy(ctx, input.Body.ProductID, input.Body.Quantity)
		}
		if err != nil {
			return nil, toHumaError(err)
		}
		out := &ReceiptLineOutput{}
		out.Body.Lines = receiptLines(ws)
		out.Body.Total = ws.Receipt.Total()
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit-receipt",
		Method:      http.MethodPost,
		Path:        "/api/v1/receipt/submit",
		Summary:     "Submit the receipt as an order",
		Tags:        []string{"Receipt"},
	}, func(ctx context.Context, _ *struct{}) (*DispatchEventOutput, error) {
		if err := ws.Receipt.Submit(ctx); err != nil {
			return nil, toHumaError(err)
		}
		out := &DispatchEventOutput{}
		out.Body.State = string(ws.Workflow.Current())
		return out, nil
	})
}

func registerPatchActive(api huma.API, resource string, apply func(map[string]any) ([]domain.FeedbackItem, bool)) {
	huma.Register(api, huma.Operation{
		OperationID: "patch-active-" + resource,
		Method:      http.MethodPatch,
		Path:        "/api/v1/" + resource + "/active",
		Summary:     "Update fields of the item being edited",
		Tags:        []string{"Catalog"},
	}, func(ctx context.Context, input *PatchActiveInput) (*PatchActiveOutput, error) {
		feedback, submittable := apply(input.Body)
		out := &PatchActiveOutput{}
		out.Body.Feedback = toFeedbackResponse(feedback)
		out.Body.Submittable = submittable
		return out, nil
	})
}

func receiptLines(ws *app.Workspace) []ReceiptLineResponse {
	lines := ws.Receipt.Lines()
	resp := make([]ReceiptLineResponse, len(lines))
	for i, l := range lines {
		resp[i] = ReceiptLineResponse{ProductID: l.ID, Quantity: l.Quantity}
		if p, ok := ws.Products.ProductByID(l.ID); ok {
			resp[i].Title = p.Title
			resp[i].Price = p.Price
		}
	}
	return resp
}

// dispatch routes a named workflow event to the owning module's action so
// payload normalization stays in one place.
func dispatch(ctx context.Context, ws *app.Workspace, input *DispatchEventInput) error {
	id := input.Body.ID
	switch domain.Transition(input.Body.Event) {
	case domain.TransitionToggleSettings:
		return ws.ToggleSettings(ctx)

	case domain.TransitionSelectConsumer:
		return ws.Consumers.Select(ctx, id)
	case domain.TransitionEditConsumer:
		return ws.Consumers.Edit(ctx)
	case domain.TransitionCreateConsumer:
		return ws.Consumers.Create(ctx)
	case domain.TransitionSaveConsumer:
		return ws.Consumers.Save(ctx)
	case domain.TransitionDeleteConsumer:
		return ws.Consumers.Delete(ctx)

	case domain.TransitionSelectProduct:
		return ws.Products.Select(ctx, id)
	case domain.TransitionEditProduct:
		return ws.Products.Edit(ctx)
	case domain.TransitionCreateProduct:
		return ws.Products.Create(ctx)
	case domain.TransitionSaveProduct:
		return ws.Products.Save(ctx, input.Body.CreateAnother)
	case domain.TransitionDeleteProduct:
		return ws.Products.Delete(ctx)

	case domain.TransitionSelectOccasion:
		return ws.Occasions.Select(ctx, id)
	case domain.TransitionEditOccasion:
		return ws.Occasions.Edit(ctx)
	case domain.TransitionCreateOccasion:
		return ws.Occasions.Create(ctx)
	case domain.TransitionSaveOccasion:
		return ws.Occasions.Save(ctx)
	case domain.TransitionDeleteOccasion:
		return ws.Occasions.Delete(ctx)
	case domain.TransitionCloseOccasion:
		return ws.Occasions.CloseOccasion(ctx)
	case domain.TransitionReopenOccasion:
		return ws.Occasions.Reopen(ctx)

	case domain.TransitionSelectOrder:
		return ws.Orders.Select(ctx, id)
	case domain.TransitionEditOrder:
		return ws.Orders.Edit(ctx)
	case domain.TransitionDeleteOrder:
		return ws.Orders.Delete(ctx)

	case domain.TransitionSubmitReceipt:
		return ws.Receipt.Submit(ctx)
	case domain.TransitionCancelEdit, domain.TransitionCloseItem:
		return ws.Workflow.Do(ctx, nil, domain.Transition(input.Body.Event))
	}
	return huma.Error422UnprocessableEntity("unknown event " + input.Body.Event)
}

// toHumaError translates domain errors to Huma HTTP errors.
func toHumaError(err error) error {
	var statusErr huma.StatusError
	if errors.As(err, &statusErr) {
		return err
	}
	switch {
	case errors.Is(err, domain.ErrConsumerNotFound),
		errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrOccasionNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrNoActiveItem):
		return huma.Error404NotFound(err.Error())
	}

	var titleErr *domain.TitleConflictError
	if errors.As(err, &titleErr) {
		return huma.Error409Conflict(titleErr.Error())
	}

	var rejection *domain.TransitionRejection
	if errors.As(err, &rejection) {
		return huma.Error422UnprocessableEntity(rejection.Code)
	}

	var trErr *domain.TransitionError
	if errors.As(err, &trErr) {
		return huma.Error409Conflict(trErr.Error())
	}

	return huma.Error500InternalServerError("internal server error")
}
