package chat

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/lox/lemonroulette/internal/bet"
	"github.com/lox/lemonroulette/internal/intake"
	"github.com/lox/lemonroulette/internal/ledger"
	"github.com/lox/lemonroulette/internal/report"
)

// Inbound is one chat line with its sender and scope. An empty Scope is a
// private conversation.
type Inbound struct {
	Scope  string
	Player bet.Identity
	Text   string
}

// Bets is what the dispatcher needs from intake.
type Bets interface {
	Submit(ctx context.Context, req intake.Request) intake.Result
	Cancel(ctx context.Context, scope string, player bet.Identity) (int64, error)
}

// Balances is what the dispatcher needs from the ledger, including the
// administrative operations.
type Balances interface {
	Balance(key string) int64
	Set(key string, amount int64) error
	Delta(key string, delta int64) (int64, error)
}

// Dispatcher turns chat text into intake, cancellation, balance and owner
// operations and returns the reply to send back. An empty reply means stay
// silent.
type Dispatcher struct {
	bets     Bets
	balances Balances
	isOwner  func(key string) bool
	opts     report.Options
	logger   *log.Logger
}

// NewDispatcher wires a dispatcher. isOwner may be nil, in which case nobody
// can run owner commands.
func NewDispatcher(bets Bets, balances Balances, isOwner func(string) bool, opts report.Options, logger *log.Logger) *Dispatcher {
	if isOwner == nil {
		isOwner = func(string) bool { return false }
	}
	return &Dispatcher{
		bets:     bets,
		balances: balances,
		isOwner:  isOwner,
		opts:     opts,
		logger:   logger.WithPrefix("dispatch"),
	}
}

var cancelWords = map[string]bool{
	"отмена":  true,
	"/cancel": true,
	"/отмена": true,
	"cancel":  true,
}

// Handle routes one message.
func (d *Dispatcher) Handle(ctx context.Context, in Inbound) string {
	text := strings.TrimSpace(in.Text)
	lower := strings.ToLower(text)

	if strings.HasPrefix(text, "/") {
		if reply, ok := d.command(in, text); ok {
			return reply
		}
	}

	if in.Scope == "" {
		if cancelWords[lower] {
			return "Команда работает только в группе."
		}
		return ""
	}

	switch {
	case lower == "б":
		return fmt.Sprintf("%s баланс: %d %s", in.Player.Name, d.balances.Balance(in.Player.Key), d.opts.Currency)
	case cancelWords[lower]:
		return d.cancel(ctx, in)
	}

	return d.submit(ctx, in, text)
}

func (d *Dispatcher) cancel(ctx context.Context, in Inbound) string {
	refunded, err := d.bets.Cancel(ctx, in.Scope, in.Player)
	switch {
	case errors.Is(err, intake.ErrNoOpenWindow):
		return "Нет активных ставок для отмены."
	case errors.Is(err, intake.ErrNothingToCancel):
		return "У тебя нет активных ставок в этом окне."
	case err != nil:
		d.logger.Error("Cancel failed", "scope", in.Scope, "player", in.Player.Key, "error", err)
		return "Не удалось отменить ставки."
	}
	return fmt.Sprintf("Отмена: возвращено %d %s тебе, %s.", refunded, d.opts.Currency, in.Player.Name)
}

func (d *Dispatcher) submit(ctx context.Context, in Inbound, text string) string {
	res := d.bets.Submit(ctx, intake.Request{Scope: in.Scope, Player: in.Player, Text: text})
	switch res.Status {
	case intake.Accepted:
		return fmt.Sprintf("Ставка принята: %d → %s. Баланс: %d %s", res.Bet.Stake, res.Bet.Describe(), res.Balance, d.opts.Currency)
	case intake.Rejected:
		switch res.Reason {
		case intake.InvalidAmount:
			return "Ставка должна быть положительным числом."
		case intake.InvalidNumber:
			return "Номер должен быть от 0 до 36."
		case intake.InsufficientFunds:
			return fmt.Sprintf("Недостаточно средств. Баланс: %d %s", res.Balance, d.opts.Currency)
		default:
			return "Приём ставок закрыт."
		}
	default:
		return ""
	}
}

// command handles slash commands. ok is false for unknown commands so they
// fall through to the other handlers.
func (d *Dispatcher) command(in Inbound, text string) (reply string, ok bool) {
	fields := strings.Fields(text)
	args := fields[1:]
	switch strings.ToLower(fields[0]) {
	case "/пинг", "/ping":
		return "pong 🟢", true
	case "/баланс", "/balance":
		return fmt.Sprintf("💼 Ваш баланс: %d", d.balances.Balance(in.Player.Key)), true
	case "/выдать":
		return d.grant(in, args), true
	case "/сброс":
		return d.reset(in, args), true
	}
	return "", false
}

func (d *Dispatcher) grant(in Inbound, args []string) string {
	if !d.isOwner(in.Player.Key) {
		return "Команда доступна только владельцу."
	}
	if len(args) < 2 {
		return "Использование: /выдать <id> <сумма>"
	}
	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return "Неверный формат. /выдать <id> <сумма>"
	}
	target := args[0]
	bal, err := d.balances.Delta(target, amount)
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return fmt.Sprintf("Нельзя списать %d: баланс пользователя %s %d %s.", -amount, target, bal, d.opts.Currency)
	case errors.Is(err, ledger.ErrOverflow):
		return fmt.Sprintf("Нельзя выдать %d: баланс пользователя %s превысит допустимый предел.", amount, target)
	case err != nil:
		d.logger.Error("Owner grant failed", "target", target, "amount", amount, "error", err)
		return "Не удалось изменить баланс."
	}
	d.logger.Info("Owner grant", "owner", in.Player.Key, "target", target, "amount", amount, "balance", bal)
	return fmt.Sprintf("Выдано %d %s пользователю %s ✅", amount, d.opts.Currency, target)
}

func (d *Dispatcher) reset(in Inbound, args []string) string {
	if !d.isOwner(in.Player.Key) {
		return "Команда доступна только владельцу."
	}
	if len(args) < 1 {
		return "Использование: /сброс <id>"
	}
	target := args[0]
	if err := d.balances.Set(target, 0); err != nil {
		d.logger.Error("Owner reset failed", "target", target, "error", err)
		return "Не удалось сбросить баланс."
	}
	d.logger.Info("Owner reset", "owner", in.Player.Key, "target", target)
	return fmt.Sprintf("Баланс пользователя %s сброшен до 0 ✅", target)
}
