package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var ErrNotTTY = errors.New("tui: requires a terminal")

type Screen string

const (
	ScreenLogin          Screen = "login"
	ScreenProperties     Screen = "properties"
	ScreenPropertyDetail Screen = "property_detail"
	ScreenCustomers      Screen = "customers"
	ScreenContracts      Screen = "contracts"
	ScreenContractDetail Screen = "contract_detail"
)

type Listing struct {
	ID          int64
	Code        string
	Title       string
	Type        string
	City        string
	Address     string
	Area        string
	Price       string
	Status      string
	Agent       string
	ImageCount  int
	Description string
}

type Customer struct {
	ID    int64
	Name  string
	Phone string
	Email string
}

type Contract struct {
	ID       int64
	Number   string
	Type     string
	Property string
	Customer string
	Amount   string
	Status   string
}

type Balance struct {
	Paid      string
	Remaining string
	Payments  int
}

// Client is the read-only view of the agency data the browser needs.
type Client interface {
	Login(ctx context.Context, username, password string) (string, error)
	ListProperties(ctx context.Context) ([]Listing, error)
	ListCustomers(ctx context.Context) ([]Customer, error)
	ListContracts(ctx context.Context) ([]Contract, error)
	ContractBalance(ctx context.Context, contractID int64) (Balance, error)
}

type Options struct {
	Client Client
	IsTTY  func() bool
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("160"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

type Model struct {
	client Client

	screen   Screen
	previous Screen
	user     string
	err      string

	usernameInput textinput.Model
	passwordInput textinput.Model

	propertiesList list.Model
	customersList  list.Model
	contractsList  list.Model

	listingsByID  map[int64]Listing
	contractsByID map[int64]Contract
	selectedID    int64
	balance       *Balance
}

type loginMsg struct {
	user string
	err  error
}

type loadedMsg struct {
	listings  []Listing
	customers []Customer
	contracts []Contract
	err       error
}

type balanceMsg struct {
	contractID int64
	balance    Balance
	err        error
}

func Run(opts Options) error {
	if opts.IsTTY != nil && !opts.IsTTY() {
		return ErrNotTTY
	}
	_, err := tea.NewProgram(NewModel(opts), tea.WithAltScreen()).Run()
	return err
}

func NewModel(opts Options) Model {
	usernameInput := textinput.New()
	usernameInput.Placeholder = "Username"
	usernameInput.Focus()

	passwordInput := textinput.New()
	passwordInput.Placeholder = "Password"
	passwordInput.EchoMode = textinput.EchoPassword

	return Model{
		client:         opts.Client,
		screen:         ScreenLogin,
		usernameInput:  usernameInput,
		passwordInput:  passwordInput,
		propertiesList: newList("Properties"),
		customersList:  newList("Customers"),
		contractsList:  newList("Contracts"),
		listingsByID:   map[int64]Listing{},
		contractsByID:  map[int64]Contract{},
	}
}

func newList(title string) list.Model {
	l := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	l.Title = title
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	l.SetShowHelp(false)
	l.SetSize(80, 20)
	return l
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.KeyMsg:
		if typed.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		height := typed.Height - 4
		if height < 1 {
			height = 1
		}
		m.propertiesList.SetSize(typed.Width, height)
		m.customersList.SetSize(typed.Width, height)
		m.contractsList.SetSize(typed.Width, height)
	}

	if m.screen == ScreenLogin {
		return m.updateLogin(msg)
	}
	return m.updateBrowsing(msg)
}

func (m Model) View() string {
	if m.screen == ScreenLogin {
		view := titleStyle.Render("AgencyDesk") + "\n\nSign in to browse listings.\n"
		if m.err != "" {
			view += "\n" + errorStyle.Render("Error: "+m.err) + "\n"
		}
		return view + "\nUsername: " + m.usernameInput.View() +
			"\nPassword: " + m.passwordInput.View() +
			"\n\n" + mutedStyle.Render("[tab] Switch field  [enter] Sign in  [ctrl+c] Quit")
	}

	tabs := mutedStyle.Render("[p] Properties  [c] Customers  [k] Contracts  [r] Reload  [l] Log out  [q] Quit") +
		"\n" + mutedStyle.Render("Signed in as "+m.user) + "\n"
	if m.err != "" {
		tabs += errorStyle.Render("Error: "+m.err) + "\n"
	}

	switch m.screen {
	case ScreenPropertyDetail:
		return tabs + "\n" + m.renderPropertyDetail()
	case ScreenContractDetail:
		return tabs + "\n" + m.renderContractDetail()
	case ScreenCustomers:
		if len(m.customersList.Items()) == 0 {
			return tabs + "\n" + renderEmptyState("No customers yet.", "Add one with `agencydesk customer add --full-name ...`")
		}
		return tabs + "\n" + m.customersList.View()
	case ScreenContracts:
		if len(m.contractsList.Items()) == 0 {
			return tabs + "\n" + renderEmptyState("No contracts yet.", "Add one with `agencydesk contract add ...`")
		}
		return tabs + "\n" + m.contractsList.View()
	default:
		if len(m.propertiesList.Items()) == 0 {
			return tabs + "\n" + renderEmptyState("No properties yet.", "Add one with `agencydesk property add --code ...`")
		}
		return tabs + "\n" + m.propertiesList.View()
	}
}

func renderEmptyState(title, guidance string) string {
	return title + "\n" + mutedStyle.Render(guidance)
}

func (m Model) updateLogin(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.KeyMsg:
		switch typed.String() {
		case "tab", "shift+tab", "down", "up":
			if m.usernameInput.Focused() {
				m.usernameInput.Blur()
				m.passwordInput.Focus()
			} else {
				m.passwordInput.Blur()
				m.usernameInput.Focus()
			}
			return m, nil
		case "enter":
			username := strings.TrimSpace(m.usernameInput.Value())
			password := m.passwordInput.Value()
			if username == "" || password == "" {
				m.err = "username and password are required"
				return m, nil
			}
			client := m.client
			return m, func() tea.Msg {
				user, err := client.Login(context.Background(), username, password)
				return loginMsg{user: user, err: err}
			}
		}
	case loginMsg:
		m.passwordInput.SetValue("")
		if typed.err != nil {
			m.err = typed.err.Error()
			return m, nil
		}
		m.user = typed.user
		m.err = ""
		m.screen = ScreenProperties
		m.passwordInput.Blur()
		m.usernameInput.Blur()
		return m, m.loadDataCmd()
	}

	var cmd tea.Cmd
	if m.passwordInput.Focused() {
		m.passwordInput, cmd = m.passwordInput.Update(msg)
	} else {
		m.usernameInput, cmd = m.usernameInput.Update(msg)
	}
	return m, cmd
}

func (m Model) updateBrowsing(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.KeyMsg:
		if m.filtering() {
			break
		}
		switch typed.String() {
		case "q":
			return m, tea.Quit
		case "p":
			m.screen = ScreenProperties
			return m, nil
		case "c":
			m.screen = ScreenCustomers
			return m, nil
		case "k":
			m.screen = ScreenContracts
			return m, nil
		case "r":
			return m, m.loadDataCmd()
		case "l":
			return m.logout(), nil
		case "enter":
			switch m.screen {
			case ScreenProperties:
				item, ok := m.propertiesList.SelectedItem().(listingItem)
				if !ok {
					return m, nil
				}
				m.selectedID = item.id
				m.previous = ScreenProperties
				m.screen = ScreenPropertyDetail
				return m, nil
			case ScreenContracts:
				item, ok := m.contractsList.SelectedItem().(contractItem)
				if !ok {
					return m, nil
				}
				m.selectedID = item.id
				m.balance = nil
				m.previous = ScreenContracts
				m.screen = ScreenContractDetail
				return m, m.balanceCmd(item.id)
			}
		case "esc":
			switch m.screen {
			case ScreenPropertyDetail, ScreenContractDetail:
				m.screen = m.previous
				m.selectedID = 0
				return m, nil
			}
		}
	case loadedMsg:
		if typed.err != nil {
			m.err = typed.err.Error()
			return m, nil
		}
		m.err = ""
		m.populateLists(typed.listings, typed.customers, typed.contracts)
		return m, nil
	case balanceMsg:
		if typed.contractID != m.selectedID {
			return m, nil
		}
		if typed.err != nil {
			m.err = typed.err.Error()
			return m, nil
		}
		balance := typed.balance
		m.balance = &balance
		return m, nil
	}

	var cmd tea.Cmd
	switch m.screen {
	case ScreenCustomers:
		m.customersList, cmd = m.customersList.Update(msg)
	case ScreenContracts:
		m.contractsList, cmd = m.contractsList.Update(msg)
	case ScreenProperties:
		m.propertiesList, cmd = m.propertiesList.Update(msg)
	}
	return m, cmd
}

// filtering reports whether the visible list is taking typed filter text,
// in which case shortcut keys belong to the filter.
func (m Model) filtering() bool {
	switch m.screen {
	case ScreenProperties:
		return m.propertiesList.FilterState() == list.Filtering
	case ScreenCustomers:
		return m.customersList.FilterState() == list.Filtering
	case ScreenContracts:
		return m.contractsList.FilterState() == list.Filtering
	}
	return false
}

func (m Model) logout() Model {
	next := NewModel(Options{Client: m.client})
	next.propertiesList.SetSize(m.propertiesList.Width(), m.propertiesList.Height())
	next.customersList.SetSize(m.customersList.Width(), m.customersList.Height())
	next.contractsList.SetSize(m.contractsList.Width(), m.contractsList.Height())
	return next
}

func (m Model) loadDataCmd() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		return loadData(client)
	}
}

func loadData(client Client) tea.Msg {
	ctx := context.Background()
	listings, err := client.ListProperties(ctx)
	if err != nil {
		return loadedMsg{err: err}
	}
	customers, err := client.ListCustomers(ctx)
	if err != nil {
		return loadedMsg{err: err}
	}
	contracts, err := client.ListContracts(ctx)
	if err != nil {
		return loadedMsg{err: err}
	}
	return loadedMsg{listings: listings, customers: customers, contracts: contracts}
}

func (m Model) balanceCmd(contractID int64) tea.Cmd {
	client := m.client
	return func() tea.Msg {
		balance, err := client.ContractBalance(context.Background(), contractID)
		return balanceMsg{contractID: contractID, balance: balance, err: err}
	}
}

func (m *Model) populateLists(listings []Listing, customers []Customer, contracts []Contract) {
	listingItems := make([]list.Item, 0, len(listings))
	byID := make(map[int64]Listing, len(listings))
	for _, listing := range listings {
		listingItems = append(listingItems, listingItem{
			id:          listing.ID,
			title:       listing.Code + "  " + listing.Title,
			description: fmt.Sprintf("%s, %s  %s  %s", listing.Type, listing.City, listing.Price, listing.Status),
		})
		byID[listing.ID] = listing
	}
	m.listingsByID = byID
	m.propertiesList.SetItems(listingItems)

	customerItems := make([]list.Item, 0, len(customers))
	for _, customer := range customers {
		contact := strings.TrimSpace(strings.Join(nonEmpty(customer.Phone, customer.Email), "  "))
		customerItems = append(customerItems, customerItem{
			title:       customer.Name,
			description: contact,
		})
	}
	m.customersList.SetItems(customerItems)

	contractItems := make([]list.Item, 0, len(contracts))
	contractsByID := make(map[int64]Contract, len(contracts))
	for _, contract := range contracts {
		contractItems = append(contractItems, contractItem{
			id:          contract.ID,
			title:       contract.Number + "  " + contract.Customer,
			description: fmt.Sprintf("%s  %s  %s  %s", contract.Type, contract.Property, contract.Amount, contract.Status),
		})
		contractsByID[contract.ID] = contract
	}
	m.contractsByID = contractsByID
	m.contractsList.SetItems(contractItems)
}

func nonEmpty(values ...string) []string {
	out := values[:0:0]
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (m Model) renderPropertyDetail() string {
	listing, ok := m.listingsByID[m.selectedID]
	if !ok {
		return "Property detail unavailable"
	}
	agent := listing.Agent
	if agent == "" {
		agent = "unassigned"
	}
	return fmt.Sprintf(
		"%s\n\nCode: %s\nType: %s\nAddress: %s, %s\nArea: %s\nPrice: %s\nStatus: %s\nAgent: %s\nImages: %d\n\n%s\n\n%s",
		titleStyle.Render(listing.Title),
		listing.Code,
		listing.Type,
		listing.Address,
		listing.City,
		listing.Area,
		listing.Price,
		listing.Status,
		agent,
		listing.ImageCount,
		listing.Description,
		mutedStyle.Render("Press ESC to go back."),
	)
}

func (m Model) renderContractDetail() string {
	contract, ok := m.contractsByID[m.selectedID]
	if !ok {
		return "Contract detail unavailable"
	}
	balance := "loading..."
	if m.balance != nil {
		balance = fmt.Sprintf("paid %s in %d payment(s), %s remaining", m.balance.Paid, m.balance.Payments, m.balance.Remaining)
	}
	return fmt.Sprintf(
		"%s\n\nType: %s\nProperty: %s\nCustomer: %s\nAmount: %s\nStatus: %s\nBalance: %s\n\n%s",
		titleStyle.Render("Contract "+contract.Number),
		contract.Type,
		contract.Property,
		contract.Customer,
		contract.Amount,
		contract.Status,
		balance,
		mutedStyle.Render("Press ESC to go back."),
	)
}

type listingItem struct {
	id          int64
	title       string
	description string
}

func (i listingItem) Title() string       { return i.title }
func (i listingItem) Description() string { return i.description }
func (i listingItem) FilterValue() string { return i.title + " " + i.description }

type customerItem struct {
	title       string
	description string
}

func (i customerItem) Title() string       { return i.title }
func (i customerItem) Description() string { return i.description }
func (i customerItem) FilterValue() string { return i.title + " " + i.description }

type contractItem struct {
	id          int64
	title       string
	description string
}

func (i contractItem) Title() string       { return i.title }
func (i contractItem) Description() string { return i.description }
func (i contractItem) FilterValue() string { return i.title + " " + i.description }
