package ui

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-pnl/internal/ingest"
	"github.com/rovshanmuradov/solana-pnl/internal/logger"
	"github.com/rovshanmuradov/solana-pnl/internal/pnl"
	"github.com/rovshanmuradov/solana-pnl/internal/ui/component"
	"github.com/rovshanmuradov/solana-pnl/internal/ui/style"
	"github.com/rovshanmuradov/solana-pnl/internal/wallet"
)

const (
	defaultRefreshEvery = 10 * time.Second
	loadTimeout         = 30 * time.Second
)

// DataSource is what the dashboard reads from.
type DataSource interface {
	State(ctx context.Context, walletID string) (*ingest.Snapshot, error)
	Snapshot(ctx context.Context, walletID string) (*wallet.Snapshot, error)
	PollOnce(ctx context.Context) error
}

// View identifies the table shown in the main pane.
type View int

const (
	ViewRealized View = iota
	ViewOpenLots
	ViewHoldings
	viewCount
)

func (v View) String() string {
	switch v {
	case ViewRealized:
		return "Realized PnL"
	case ViewOpenLots:
		return "Open lots"
	case ViewHoldings:
		return "Wallet"
	default:
		return "?"
	}
}

// Options configures a Dashboard.
type Options struct {
	Wallets      []string
	RefreshEvery time.Duration
	Logs         *logger.LogBuffer // nil hides the log pane
	Updates      *UpdateSender
}

// Dashboard is the root bubbletea model.
type Dashboard struct {
	source  DataSource
	logger  *zap.Logger
	opts    Options
	keys    KeyMap
	help    help.Model
	spinner spinner.Model
	palette style.Palette

	header *component.StatusHeader
	logs   *component.CompactLogViewer
	tables [viewCount]table.Model

	walletIdx int
	view      View
	loading   bool
	state     *ingest.Snapshot
	holdings  *wallet.Snapshot
	holdErr   error
	width     int
	height    int
}

// NewDashboard creates the dashboard model.
func NewDashboard(source DataSource, opts Options, logger *zap.Logger) *Dashboard {
	if opts.RefreshEvery <= 0 {
		opts.RefreshEvery = defaultRefreshEvery
	}
	palette := style.DefaultPalette()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(palette.Secondary)

	d := &Dashboard{
		source:  source,
		logger:  logger.Named("ui"),
		opts:    opts,
		keys:    DefaultKeyMap(),
		help:    help.New(),
		spinner: sp,
		palette: palette,
		header:  component.NewStatusHeader(),
	}
	if opts.Logs != nil {
		d.logs = component.NewCompactLogViewer(opts.Logs)
	}

	d.tables[ViewRealized] = d.newTable([]table.Column{
		{Title: "Asset", Width: 46},
		{Title: "Realized", Width: 14},
		{Title: "Proceeds", Width: 14},
		{Title: "Cost basis", Width: 14},
		{Title: "Sold", Width: 14},
		{Title: "Sales", Width: 6},
		{Title: "Unmatched", Width: 12},
		{Title: "Bought", Width: 14},
		{Title: "Buys", Width: 6},
	})
	d.tables[ViewOpenLots] = d.newTable([]table.Column{
		{Title: "Asset", Width: 46},
		{Title: "Opened", Width: 17},
		{Title: "Remaining", Width: 14},
		{Title: "Unit cost", Width: 12},
		{Title: "Cost basis", Width: 14},
	})
	d.tables[ViewHoldings] = d.newTable([]table.Column{
		{Title: "Mint", Width: 46},
		{Title: "Amount", Width: 16},
		{Title: "Price", Width: 14},
		{Title: "Value", Width: 14},
	})

	if len(opts.Wallets) > 0 {
		d.header.SetWallet(opts.Wallets[0])
	}
	return d
}

func (d *Dashboard) newTable(cols []table.Column) table.Model {
	t := table.New(
		table.WithColumns(cols),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(d.palette.TextMuted).
		BorderBottom(true).
		Foreground(d.palette.Secondary).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(d.palette.Background).
		Background(d.palette.Primary).
		Bold(false)
	t.SetStyles(s)
	return t
}

// Init starts the spinner, the first load and auto refresh.
func (d *Dashboard) Init() tea.Cmd {
	d.loading = true
	cmds := []tea.Cmd{d.spinner.Tick, d.load(), d.tick()}
	if d.opts.Updates != nil {
		cmds = append(cmds, d.opts.Updates.Listen())
	}
	return tea.Batch(cmds...)
}

func (d *Dashboard) tick() tea.Cmd {
	return tea.Tick(d.opts.RefreshEvery, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// CurrentWallet returns the wallet being shown.
func (d *Dashboard) CurrentWallet() string {
	if len(d.opts.Wallets) == 0 {
		return ""
	}
	return d.opts.Wallets[d.walletIdx]
}

// load reads the committed state and the on-chain snapshot of the current wallet.
func (d *Dashboard) load() tea.Cmd {
	walletID := d.CurrentWallet()
	source := d.source
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()

		msg := RefreshMsg{WalletID: walletID, At: time.Now()}
		if walletID == "" {
			msg.Err = errors.New("no wallets configured")
			return msg
		}
		msg.State, msg.Err = source.State(ctx, walletID)
		msg.Holdings, msg.HoldingsErr = source.Snapshot(ctx, walletID)
		return msg
	}
}

// pollAndLoad runs one poll before reloading; poll errors arrive as IngestMsg
// through the event bridge.
func (d *Dashboard) pollAndLoad() tea.Cmd {
	source := d.source
	reload := d.load()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()
		_ = source.PollOnce(ctx)
		return reload()
	}
}

// Update handles messages.
func (d *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		d.width, d.height = msg.Width, msg.Height
		d.resize()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, d.keys.Quit):
			return d, tea.Quit
		case key.Matches(msg, d.keys.Refresh):
			if !d.loading {
				d.loading = true
				cmds = append(cmds, d.pollAndLoad(), d.spinner.Tick)
			}
		case key.Matches(msg, d.keys.Tab):
			d.view = (d.view + 1) % viewCount
		case key.Matches(msg, d.keys.Wallet):
			if len(d.opts.Wallets) > 1 {
				d.walletIdx = (d.walletIdx + 1) % len(d.opts.Wallets)
				d.header.SetWallet(d.CurrentWallet())
				d.state, d.holdings = nil, nil
				d.fillTables()
				d.loading = true
				cmds = append(cmds, d.load(), d.spinner.Tick)
			}
		case key.Matches(msg, d.keys.Logs):
			if d.logs != nil {
				d.logs.Toggle()
				d.resize()
			}
		case key.Matches(msg, d.keys.Help):
			d.help.ShowAll = !d.help.ShowAll
		default:
			var cmd tea.Cmd
			d.tables[d.view], cmd = d.tables[d.view].Update(msg)
			cmds = append(cmds, cmd)
		}

	case RefreshMsg:
		// ответ для предыдущего кошелька
		if msg.WalletID != d.CurrentWallet() {
			break
		}
		d.loading = false
		d.applyRefresh(msg)

	case IngestMsg:
		if msg.WalletID == d.CurrentWallet() {
			var perr *ingest.PersistenceError
			switch {
			case errors.As(msg.Err, &perr):
				d.header.SetStale(perr.Error())
			case msg.Err == nil && !d.loading:
				d.loading = true
				cmds = append(cmds, d.load(), d.spinner.Tick)
			}
		}
		if d.opts.Updates != nil {
			cmds = append(cmds, d.opts.Updates.Listen())
		}

	case tickMsg:
		if !d.loading {
			d.loading = true
			cmds = append(cmds, d.load(), d.spinner.Tick)
		}
		cmds = append(cmds, d.tick())

	case spinner.TickMsg:
		if d.loading {
			var cmd tea.Cmd
			d.spinner, cmd = d.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	if d.loading {
		d.header.SetBusy(d.spinner.View())
	} else {
		d.header.SetBusy("")
	}
	return d, tea.Batch(cmds...)
}

// applyRefresh keeps the last good state when the load fails.
func (d *Dashboard) applyRefresh(msg RefreshMsg) {
	if msg.Err != nil {
		d.logger.Warn("Dashboard refresh failed", zap.Error(msg.Err))
		d.header.SetStale(msg.Err.Error())
	} else {
		d.state = msg.State
		d.header.SetStale("")
		d.header.SetState(msg.State.Version, msg.State.TotalRealized(), msg.At)
	}

	d.holdErr = msg.HoldingsErr
	if msg.HoldingsErr == nil && msg.Holdings != nil {
		d.holdings = msg.Holdings
	}
	d.fillTables()
}

// Stale reports whether the shown state is outdated.
func (d *Dashboard) Stale() bool {
	return d.header.IsStale()
}

func (d *Dashboard) fillTables() {
	d.tables[ViewRealized].SetRows(realizedRows(d.state))
	d.tables[ViewOpenLots].SetRows(lotRows(d.state))
	d.tables[ViewHoldings].SetRows(holdingRows(d.holdings))
}

func realizedRows(s *ingest.Snapshot) []table.Row {
	if s == nil {
		return nil
	}
	assets := make([]string, 0, len(s.Details))
	for asset := range s.Details {
		assets = append(assets, asset)
	}
	sort.Slice(assets, func(i, j int) bool {
		return s.Details[assets[i]].RealizedUSD > s.Details[assets[j]].RealizedUSD
	})

	rows := make([]table.Row, 0, len(assets))
	for _, asset := range assets {
		r := s.Details[asset]
		rows = append(rows, table.Row{
			asset,
			pnl.FormatUSD(r.RealizedUSD),
			pnl.FormatUSD(r.ProceedsUSD),
			pnl.FormatUSD(r.CostBasisUSD),
			pnl.FormatQuantity(r.SoldQuantity),
			strconv.Itoa(r.Sales),
			pnl.FormatQuantity(r.UnmatchedQuantity),
			pnl.FormatUSD(r.BoughtUSD),
			strconv.Itoa(r.Buys),
		})
	}
	return rows
}

func lotRows(s *ingest.Snapshot) []table.Row {
	if s == nil {
		return nil
	}
	assets := make([]string, 0, len(s.OpenLots))
	for asset := range s.OpenLots {
		assets = append(assets, asset)
	}
	sort.Strings(assets)

	var rows []table.Row
	for _, asset := range assets {
		for _, lot := range s.OpenLots[asset] {
			rows = append(rows, table.Row{
				asset,
				lot.OpenedAt.Local().Format("2006-01-02 15:04"),
				pnl.FormatQuantity(lot.QuantityRemaining),
				fmt.Sprintf("$%.6g", lot.UnitCostUSD),
				pnl.FormatUSD(lot.CostBasisUSD()),
			})
		}
	}
	return rows
}

func holdingRows(s *wallet.Snapshot) []table.Row {
	if s == nil {
		return nil
	}
	rows := make([]table.Row, 0, len(s.Tokens)+1)
	rows = append(rows, table.Row{
		"SOL",
		pnl.FormatQuantity(s.SOLBalance),
		optionalUSD(s.SOLPrice),
		optionalUSD(multiply(s.SOLPrice, s.SOLBalance)),
	})
	for _, h := range s.Tokens {
		rows = append(rows, table.Row{
			h.Mint,
			pnl.FormatQuantity(h.Amount),
			optionalUSD(h.PriceUSD),
			optionalUSD(h.ValueUSD),
		})
	}
	return rows
}

func multiply(p *float64, q float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p * q
	return &v
}

func optionalUSD(v *float64) string {
	if v == nil {
		return "-"
	}
	return pnl.FormatUSD(*v)
}

func (d *Dashboard) resize() {
	if d.width == 0 {
		return
	}
	d.header.SetWidth(d.width)
	d.help.Width = d.width

	logHeight := 0
	if d.logs != nil && d.logs.IsVisible() {
		logHeight = max(d.height/4, 5)
		d.logs.SetSize(d.width, logHeight)
	}

	// header, tabs, help
	tableHeight := max(d.height-logHeight-9, 3)
	for i := range d.tables {
		d.tables[i].SetHeight(tableHeight)
		d.tables[i].SetWidth(d.width - 2)
	}
}

// View renders the dashboard. Old data stays on screen while a refresh fails.
func (d *Dashboard) View() string {
	if d.width == 0 {
		return "Initializing..."
	}

	sections := []string{d.header.View(), d.renderTabs()}
	if d.view == ViewHoldings && d.holdErr != nil {
		sections = append(sections, lipgloss.NewStyle().Foreground(d.palette.Warning).
			Render("balances unavailable: "+d.holdErr.Error()))
	}
	sections = append(sections, d.tables[d.view].View())
	if d.view == ViewHoldings && d.holdings != nil {
		sections = append(sections, "Total value: "+pnl.FormatUSD(d.holdings.TotalValueUSD()))
	}
	if d.view == ViewRealized && d.state != nil {
		sections = append(sections, fmt.Sprintf("Total buys: %s   Realized: %s",
			pnl.FormatUSD(d.state.TotalBoughtUSD()), pnl.FormatUSD(d.state.TotalRealized())))
	}
	if d.logs != nil {
		if v := d.logs.View(); v != "" {
			sections = append(sections, v)
		}
	}
	sections = append(sections, d.help.View(d.keys))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (d *Dashboard) renderTabs() string {
	active := lipgloss.NewStyle().Foreground(d.palette.Primary).Bold(true).Underline(true).Padding(0, 1)
	inactive := lipgloss.NewStyle().Foreground(d.palette.TextMuted).Padding(0, 1)

	tabs := make([]string, 0, viewCount)
	for v := View(0); v < viewCount; v++ {
		if v == d.view {
			tabs = append(tabs, active.Render(v.String()))
		} else {
			tabs = append(tabs, inactive.Render(v.String()))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}
