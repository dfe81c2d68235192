package client

import (
	"context"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Special prompts. Prompts starting with "SYSTEM_" are internal: they are
// rewritten before sending and their replies are never shown.
const (
	FetchCart         = "SYSTEM_FETCH_CART"
	FetchCartInternal = "SYSTEM_FETCH_CART_INTERNAL"

	systemPrefix = "SYSTEM_"

	RefreshMessage = "Show me what's in my cart using access_cart_information tool"
	ConfirmMessage = "I want to finalize and submit my order now. Please process it and confirm."

	NoTextReply = "I processed your request, but didn't generate a text response."
	ErrorReply  = "Sorry, an error occurred while processing your request."
)

var (
	ErrEmptyCart     = errors.New("your cart is empty")
	ErrNotConfirming = errors.New("no order submission to confirm")
	ErrOrderPlaced   = errors.New("order already submitted")
)

var cartKeywords = []string{"add", "remove", "update", "cart", "checkout", "order", "buy", "purchase"}

// IsCartRelated reports whether a prompt may change or ask about the cart.
func IsCartRelated(prompt string) bool {
	lower := strings.ToLower(prompt)
	for _, k := range cartKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// EffectivePrompt rewrites the cart fetch triggers into instructions the
// model can act on. Other prompts are returned unchanged.
func EffectivePrompt(prompt string) string {
	switch prompt {
	case FetchCart:
		return "Use the access_cart_information tool to show what's in my cart."
	case FetchCartInternal:
		return "Run access_cart_information and return the current contents of my shopping cart."
	}
	return prompt
}

// OrderState tracks the submit and confirm steps of an order.
type OrderState int

const (
	OrderNone OrderState = iota
	OrderConfirming
	OrderConfirmed
	OrderSubmitted
)

func (s OrderState) String() string {
	switch s {
	case OrderConfirming:
		return "confirming"
	case OrderConfirmed:
		return "confirmed"
	case OrderSubmitted:
		return "submitted"
	}
	return "none"
}

// Turn is one displayed chat message.
type Turn struct {
	Role string // "user" | "assistant"
	Text string
}

// Conversation is one shopper's chat with the agent, with the cart and
// order state a front end displays.
type Conversation struct {
	client    *Client
	sessionID string
	log       logrus.FieldLogger

	mu           sync.Mutex
	history      []Turn
	cart         Cart
	toolOutputs  map[string]any
	state        OrderState
	confirmed    bool
	orderDetails any
	lastRaw      string
}

// NewConversation starts a conversation. An empty sessionID generates one.
func NewConversation(c *Client, sessionID string) *Conversation {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	return &Conversation{
		client:      c,
		sessionID:   sessionID,
		log:         c.log.WithField("session", sessionID),
		cart:        Cart{Items: []CartItem{}},
		toolOutputs: map[string]any{},
	}
}

// Send posts one prompt and returns the text to show. System prompts
// return "". On failure the returned text is ErrorReply and err says why.
func (cv *Conversation) Send(ctx context.Context, prompt string) (string, error) {
	system := strings.HasPrefix(prompt, systemPrefix)
	refresh := system || IsCartRelated(prompt)
	if !system {
		cv.appendTurn("user", prompt)
	}

	reply, err := cv.run(ctx, prompt, 0)
	if err != nil {
		cv.log.WithError(err).Error("agent interaction failed")
		if system {
			return "", err
		}
		cv.appendTurn("assistant", ErrorReply)
		return ErrorReply, err
	}

	if cartOut, ok := reply.ToolOutputs[cartTool]; ok {
		cv.updateCart(cartOut)
	} else if refresh && !system {
		cv.refetchCart(ctx)
	}

	text := reply.Text
	if system {
		return "", nil
	}
	if text == "" {
		cv.log.Warn("no text content in the response")
		text = NoTextReply
	}
	cv.appendTurn("assistant", text)
	return text, nil
}

// run sends one prompt and folds the reply's tool outputs and order status
// into the conversation.
func (cv *Conversation) run(ctx context.Context, prompt string, timeout time.Duration) (Reply, error) {
	if err := cv.client.EnsureSession(ctx, cv.sessionID); err != nil {
		return Reply{}, err
	}
	body, err := cv.client.Run(ctx, cv.sessionID, EffectivePrompt(prompt), timeout)
	if err != nil {
		return Reply{}, err
	}
	reply := ParseSSEResponse(body)

	cv.mu.Lock()
	defer cv.mu.Unlock()
	cv.lastRaw = excerpt(body, 10000)
	maps.Copy(cv.toolOutputs, reply.ToolOutputs)
	if crm, ok := reply.ToolOutputs[crmTool]; ok && cv.orderDetails == nil {
		cv.orderDetails = crm
	}
	if reply.OrderConfirmed {
		cv.confirmed = true
		if cv.state == OrderConfirmed {
			cv.state = OrderSubmitted
		}
	}
	return reply, nil
}

// refetchCart asks the agent for the cart when a cart-related prompt did
// not return it. Failures are logged and otherwise ignored.
func (cv *Conversation) refetchCart(ctx context.Context) {
	cv.log.Info("response suggests cart change, fetching cart")
	reply, err := cv.run(ctx, FetchCartInternal, cv.client.cfg.RefetchTimeout)
	if err != nil {
		cv.log.WithError(err).Error("explicit cart fetch failed")
		return
	}
	out, ok := reply.ToolOutputs[cartTool]
	if !ok {
		keys := make([]string, 0, len(reply.ToolOutputs))
		for k := range reply.ToolOutputs {
			keys = append(keys, k)
		}
		cv.log.WithField("tools", keys).Warn("explicit cart fetch returned no cart")
		return
	}
	cv.updateCart(out)
}

func (cv *Conversation) updateCart(v any) {
	cv.mu.Lock()
	ok := cv.cart.Update(v)
	cv.mu.Unlock()
	if !ok {
		cv.log.WithField("data", v).Warn("unexpected cart data format")
	}
}

func (cv *Conversation) appendTurn(role, text string) {
	cv.mu.Lock()
	cv.history = append(cv.history, Turn{Role: role, Text: text})
	cv.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Order submission
// ---------------------------------------------------------------------------

// RefreshCart asks the agent to show the cart.
func (cv *Conversation) RefreshCart(ctx context.Context) (string, error) {
	return cv.Send(ctx, RefreshMessage)
}

// RequestSubmit starts order submission. The shopper must then Confirm or
// Cancel.
func (cv *Conversation) RequestSubmit() error {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	if cv.confirmed {
		return ErrOrderPlaced
	}
	if cv.cart.IsEmpty() {
		return ErrEmptyCart
	}
	cv.state = OrderConfirming
	return nil
}

// Confirm asks the agent to place the order.
func (cv *Conversation) Confirm(ctx context.Context) (string, error) {
	cv.mu.Lock()
	if cv.state != OrderConfirming {
		cv.mu.Unlock()
		return "", ErrNotConfirming
	}
	cv.state = OrderConfirmed
	cv.mu.Unlock()
	return cv.Send(ctx, ConfirmMessage)
}

// Cancel abandons a pending submission.
func (cv *Conversation) Cancel() {
	cv.mu.Lock()
	if cv.state == OrderConfirming {
		cv.state = OrderNone
	}
	cv.mu.Unlock()
}

// StartNewOrder clears the confirmation and the cart after an order.
func (cv *Conversation) StartNewOrder() {
	cv.mu.Lock()
	cv.confirmed = false
	cv.orderDetails = nil
	cv.state = OrderNone
	cv.cart = Cart{Items: []CartItem{}}
	cv.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

func (cv *Conversation) SessionID() string { return cv.sessionID }

func (cv *Conversation) Cart() Cart {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	out := cv.cart
	out.Items = append([]CartItem(nil), cv.cart.Items...)
	return out
}

func (cv *Conversation) State() OrderState {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	return cv.state
}

// OrderConfirmed reports whether the agent has confirmed an order.
func (cv *Conversation) OrderConfirmed() bool {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	return cv.confirmed
}

// OrderDetails is the CRM update result of the confirmed order, if any.
func (cv *Conversation) OrderDetails() any {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	return cv.orderDetails
}

func (cv *Conversation) ToolOutputs() map[string]any {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	return maps.Clone(cv.toolOutputs)
}

func (cv *Conversation) History() []Turn {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	return append([]Turn(nil), cv.history...)
}

// LastRawResponse is the start of the most recent response body.
func (cv *Conversation) LastRawResponse() string {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	return cv.lastRaw
}
