package domain

// State is a mutually exclusive UI mode of the application.
type State string

const (
	StateIdle     State = "idle"
	StateSettings State = "settings"
	StateReceipt  State = "receipt"

	StateConsumerView   State = "consumerView"
	StateConsumerEdit   State = "consumerEdit"
	StateConsumerCreate State = "consumerCreate"

	StateProductView   State = "productView"
	StateProductEdit   State = "productEdit"
	StateProductCreate State = "productCreate"

	StateOccasionView   State = "occasionView"
	StateOccasionEdit   State = "occasionEdit"
	StateOccasionCreate State = "occasionCreate"

	StateOrderView State = "orderView"
)

// Transition names a workflow event that moves the application between states.
type Transition string

const (
	TransitionToggleSettings Transition = "TOGGLE_SETTINGS"

	TransitionSelectConsumer Transition = "SELECT_CONSUMER"
	TransitionEditConsumer   Transition = "EDIT_CONSUMER"
	TransitionCreateConsumer Transition = "CREATE_CONSUMER"
	TransitionSaveConsumer   Transition = "SAVE_CONSUMER"
	TransitionDeleteConsumer Transition = "DELETE_CONSUMER"

	TransitionSelectProduct Transition = "SELECT_PRODUCT"
	TransitionEditProduct   Transition = "EDIT_PRODUCT"
	TransitionCreateProduct Transition = "CREATE_PRODUCT"
	TransitionSaveProduct   Transition = "SAVE_PRODUCT"
	TransitionDeleteProduct Transition = "DELETE_PRODUCT"

	TransitionSelectOccasion Transition = "SELECT_OCCASION"
	TransitionEditOccasion   Transition = "EDIT_OCCASION"
	TransitionCreateOccasion Transition = "CREATE_OCCASION"
	TransitionSaveOccasion   Transition = "SAVE_OCCASION"
	TransitionDeleteOccasion Transition = "DELETE_OCCASION"
	TransitionCloseOccasion  Transition = "CLOSE_OCCASION"
	TransitionReopenOccasion Transition = "REOPEN_OCCASION"

	TransitionSelectOrder Transition = "SELECT_ORDER"
	TransitionEditOrder   Transition = "EDIT_ORDER"
	TransitionDeleteOrder Transition = "DELETE_ORDER"

	TransitionStartReceipt     Transition = "START_RECEIPT"
	TransitionIncrementProduct Transition = "INCREMENT_PRODUCT"
	TransitionDecrementProduct Transition = "DECREMENT_PRODUCT"
	TransitionSubmitReceipt    Transition = "SUBMIT_RECEIPT"

	TransitionCancelEdit Transition = "CANCEL_EDIT"
	TransitionCloseItem  Transition = "CLOSE_ITEM"
)

// TransitionRule defines a valid state change: a transition moves the
// workflow from Src to Dst.
type TransitionRule struct {
	Transition Transition
	Src        State
	Dst        State
}

// Transitions defines all valid state changes in the workflow. This is domain
// knowledge consumed by the FSM adapter. A rule with Src == Dst is a
// self-transition: its before/after observers run but enter observers do not.
var Transitions = []TransitionRule{
	{Transition: TransitionToggleSettings, Src: StateIdle, Dst: StateSettings},
	{Transition: TransitionToggleSettings, Src: StateSettings, Dst: StateIdle},

	{Transition: TransitionSelectConsumer, Src: StateIdle, Dst: StateConsumerView},
	{Transition: TransitionEditConsumer, Src: StateConsumerView, Dst: StateConsumerEdit},
	{Transition: TransitionCreateConsumer, Src: StateIdle, Dst: StateConsumerCreate},
	{Transition: TransitionSaveConsumer, Src: StateConsumerEdit, Dst: StateConsumerView},
	{Transition: TransitionSaveConsumer, Src: StateConsumerCreate, Dst: StateConsumerView},
	{Transition: TransitionDeleteConsumer, Src: StateConsumerView, Dst: StateIdle},

	{Transition: TransitionSelectProduct, Src: StateIdle, Dst: StateProductView},
	{Transition: TransitionEditProduct, Src: StateProductView, Dst: StateProductEdit},
	{Transition: TransitionCreateProduct, Src: StateIdle, Dst: StateProductCreate},
	{Transition: TransitionSaveProduct, Src: StateProductEdit, Dst: StateProductView},
	{Transition: TransitionSaveProduct, Src: StateProductCreate, Dst: StateProductView},
	{Transition: TransitionDeleteProduct, Src: StateProductView, Dst: StateIdle},

	{Transition: TransitionSelectOccasion, Src: StateIdle, Dst: StateOccasionView},
	{Transition: TransitionEditOccasion, Src: StateOccasionView, Dst: StateOccasionEdit},
	{Transition: TransitionCreateOccasion, Src: StateIdle, Dst: StateOccasionCreate},
	{Transition: TransitionSaveOccasion, Src: StateOccasionEdit, Dst: StateOccasionView},
	{Transition: TransitionSaveOccasion, Src: StateOccasionCreate, Dst: StateOccasionView},
	{Transition: TransitionDeleteOccasion, Src: StateOccasionView, Dst: StateIdle},
	{Transition: TransitionCloseOccasion, Src: StateOccasionView, Dst: StateOccasionView},
	{Transition: TransitionReopenOccasion, Src: StateOccasionView, Dst: StateOccasionView},

	{Transition: TransitionSelectOrder, Src: StateIdle, Dst: StateOrderView},
	{Transition: TransitionEditOrder, Src: StateOrderView, Dst: StateReceipt},
	{Transition: TransitionDeleteOrder, Src: StateOrderView, Dst: StateIdle},

	{Transition: TransitionStartReceipt, Src: StateIdle, Dst: StateReceipt},
	{Transition: TransitionIncrementProduct, Src: StateReceipt, Dst: StateReceipt},
	{Transition: TransitionDecrementProduct, Src: StateReceipt, Dst: StateReceipt},
	{Transition: TransitionSubmitReceipt, Src: StateReceipt, Dst: StateIdle},

	{Transition: TransitionCancelEdit, Src: StateConsumerEdit, Dst: StateConsumerView},
	{Transition: TransitionCancelEdit, Src: StateProductEdit, Dst: StateProductView},
	{Transition: TransitionCancelEdit, Src: StateOccasionEdit, Dst: StateOccasionView},
	{Transition: TransitionCancelEdit, Src: StateConsumerCreate, Dst: StateIdle},
	{Transition: TransitionCancelEdit, Src: StateProductCreate, Dst: StateIdle},
	{Transition: TransitionCancelEdit, Src: StateOccasionCreate, Dst: StateIdle},

	{Transition: TransitionCloseItem, Src: StateConsumerView, Dst: StateIdle},
	{Transition: TransitionCloseItem, Src: StateProductView, Dst: StateIdle},
	{Transition: TransitionCloseItem, Src: StateOccasionView, Dst: StateIdle},
	{Transition: TransitionCloseItem, Src: StateOrderView, Dst: StateIdle},
	{Transition: TransitionCloseItem, Src: StateReceipt, Dst: StateIdle},
}

// Lifecycle describes the state change a transition performs. It is passed to
// every observer together with the transition's payload.
type Lifecycle struct {
	Transition Transition
	From       State
	To         State
}
