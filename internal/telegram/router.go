package telegram

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// Router handles message routing and command parsing
type Router struct {
	logger    *logrus.Logger
	handlers  map[string]CommandHandler
	callbacks map[string]CallbackHandler
}

// CommandHandler defines the interface for command handlers
type CommandHandler interface {
	Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error
}

// CallbackHandler handles inline keyboard presses whose data is
// "<action>:<payload>". The returned text is shown to the user who pressed.
type CallbackHandler interface {
	HandleCallback(query *tgbotapi.CallbackQuery, payload string) (string, error)
}

// NewRouter creates a new message router
func NewRouter(logger *logrus.Logger) *Router {
	return &Router{
		logger:    logger,
		handlers:  make(map[string]CommandHandler),
		callbacks: make(map[string]CallbackHandler),
	}
}

// RegisterCommand registers a command handler
func (r *Router) RegisterCommand(command string, handler CommandHandler) {
	r.handlers[command] = handler
	r.logger.Debugf("Registered command: %s", command)
}

// RegisterCallback registers the handler for an inline keyboard action
func (r *Router) RegisterCallback(action string, handler CallbackHandler) {
	r.callbacks[action] = handler
	r.logger.Debugf("Registered callback: %s", action)
}

// HandleMessage handles incoming messages
func (r *Router) HandleMessage(bot *tgbotapi.BotAPI, message *tgbotapi.Message) {
	fields := logrus.Fields{
		"chat_id":    message.Chat.ID,
		"message_id": message.MessageID,
	}
	// channel posts carry no sender
	if message.From != nil {
		fields["user_id"] = message.From.ID
		fields["username"] = message.From.UserName
	}

	// Only commands are handled
	if message.Text == "" || !message.IsCommand() {
		return
	}

	command := message.Command()
	args := strings.Fields(message.CommandArguments())
	fields["command"] = command
	r.logger.WithFields(fields).Info("Received command")

	// Find and execute handler
	if handler, exists := r.handlers[command]; exists {
		if err := handler.Handle(bot, message, args); err != nil {
			r.logger.WithFields(fields).WithError(err).Error("Command handler failed")

			// Send error message to user
			errorMsg := tgbotapi.NewMessage(message.Chat.ID, "❌ An error occurred while processing your command. Please try again.")
			bot.Send(errorMsg)
		}
	} else {
		// Unknown command
		r.logger.WithFields(fields).Warn("Unknown command")

		unknownMsg := tgbotapi.NewMessage(message.Chat.ID, "❓ Unknown command. Use /help to see available commands.")
		bot.Send(unknownMsg)
	}
}

// HandleCallbackQuery handles callback queries from inline keyboards
func (r *Router) HandleCallbackQuery(bot *tgbotapi.BotAPI, callbackQuery *tgbotapi.CallbackQuery) {
	text := r.routeCallback(callbackQuery)

	// Answer the callback query to remove loading state
	if _, err := bot.Request(tgbotapi.NewCallback(callbackQuery.ID, text)); err != nil {
		r.logger.WithError(err).Warn("Failed to answer callback query")
	}
}

// routeCallback dispatches the query to its action handler and returns the
// answer text.
func (r *Router) routeCallback(callbackQuery *tgbotapi.CallbackQuery) string {
	action, payload, _ := strings.Cut(callbackQuery.Data, ":")
	fields := logrus.Fields{
		"callback_id": callbackQuery.ID,
		"action":      action,
	}
	if callbackQuery.From != nil {
		fields["user_id"] = callbackQuery.From.ID
	}
	r.logger.WithFields(fields).Info("Received callback query")

	handler, exists := r.callbacks[action]
	if !exists {
		r.logger.WithFields(fields).Warn("Unknown callback action")
		return "❓ This button is no longer supported."
	}

	text, err := handler.HandleCallback(callbackQuery, payload)
	if err != nil {
		r.logger.WithFields(fields).WithError(err).Error("Callback handler failed")
		return "❌ Something went wrong. Please try again."
	}
	return text
}
