package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"
)

func TestModelStartsOnLoginAndLoadsListingsAfterSignIn(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	model := NewModel(Options{Client: client})
	require.Equal(t, ScreenLogin, model.screen)
	require.Contains(t, model.View(), "Sign in")

	model.usernameInput.SetValue("admin")
	model.passwordInput.SetValue("admin123")
	updated, cmd := model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	msg := cmd()
	require.IsType(t, loginMsg{}, msg)

	next, loadCmd := updated.(Model).Update(msg)
	require.NotNil(t, loadCmd)
	loaded := loadCmd()
	require.IsType(t, loadedMsg{}, loaded)

	final, _ := next.(Model).Update(loaded)
	state := final.(Model)
	require.Equal(t, ScreenProperties, state.screen)
	require.Len(t, state.propertiesList.Items(), 2)
	require.Equal(t, "", state.passwordInput.Value())
	require.Contains(t, state.View(), "Signed in as Administrator")
}

func TestLoginRequiresBothFields(t *testing.T) {
	t.Parallel()

	model := NewModel(Options{Client: newFakeClient()})
	model.usernameInput.SetValue("admin")

	updated, cmd := model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.Nil(t, cmd)
	require.Contains(t, updated.(Model).View(), "username and password are required")
}

func TestLoginFailureStaysOnLoginScreen(t *testing.T) {
	t.Parallel()

	model := NewModel(Options{Client: newFakeClient()})
	model.usernameInput.SetValue("admin")
	model.passwordInput.SetValue("wrong-password")

	updated, cmd := model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	next, _ := updated.(Model).Update(cmd())
	state := next.(Model)
	require.Equal(t, ScreenLogin, state.screen)
	require.Contains(t, state.View(), "invalid credentials")
	require.Equal(t, "", state.passwordInput.Value())
}

func TestTabMovesFocusToPassword(t *testing.T) {
	t.Parallel()

	model := NewModel(Options{Client: newFakeClient()})
	updated, _ := model.Update(tea.KeyMsg{Type: tea.KeyTab})
	state := updated.(Model)
	require.True(t, state.passwordInput.Focused())
	require.False(t, state.usernameInput.Focused())
}

func TestShortcutsSwitchScreensAndShowDetails(t *testing.T) {
	t.Parallel()

	state := signedIn(t, newFakeClient())

	next, _ := state.Update(keyRunes("c"))
	state = next.(Model)
	require.Equal(t, ScreenCustomers, state.screen)
	require.Contains(t, state.View(), "Ayse Yilmaz")

	next, _ = state.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, ScreenCustomers, next.(Model).screen)

	next, _ = state.Update(keyRunes("p"))
	state = next.(Model)
	next, _ = state.Update(tea.KeyMsg{Type: tea.KeyEnter})
	state = next.(Model)
	require.Equal(t, ScreenPropertyDetail, state.screen)
	view := state.View()
	require.Contains(t, view, "Sea view flat")
	require.Contains(t, view, "Images: 3")
	require.Contains(t, view, "Agent: unassigned")

	next, _ = state.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.Equal(t, ScreenProperties, next.(Model).screen)
}

func TestContractDetailLoadsBalance(t *testing.T) {
	t.Parallel()

	state := signedIn(t, newFakeClient())
	next, _ := state.Update(keyRunes("k"))
	state = next.(Model)

	next, cmd := state.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	state = next.(Model)
	require.Equal(t, ScreenContractDetail, state.screen)
	require.Contains(t, state.View(), "loading...")

	next, _ = state.Update(cmd())
	view := next.(Model).View()
	require.Contains(t, view, "Contract C-2024-001")
	require.Contains(t, view, "paid 15000.25 in 2 payment(s), 84999.75 remaining")
}

func TestStaleBalanceIsIgnored(t *testing.T) {
	t.Parallel()

	state := signedIn(t, newFakeClient())
	state.screen = ScreenContractDetail
	state.selectedID = 1

	next, _ := state.Update(balanceMsg{contractID: 2, balance: Balance{Paid: "1"}})
	require.Nil(t, next.(Model).balance)
}

func TestLogoutClearsLoadedData(t *testing.T) {
	t.Parallel()

	state := signedIn(t, newFakeClient())
	next, _ := state.Update(keyRunes("l"))
	state = next.(Model)
	require.Equal(t, ScreenLogin, state.screen)
	require.Empty(t, state.propertiesList.Items())
	require.Empty(t, state.user)
}

func TestLoadErrorIsShown(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	client.listErr = errors.New("database is locked")
	state := signedIn(t, client)
	require.Contains(t, state.View(), "database is locked")
}

func TestEmptyListsShowGuidance(t *testing.T) {
	t.Parallel()

	client := &fakeClient{password: "admin123"}
	state := signedIn(t, client)
	require.Contains(t, state.View(), "No properties yet.")

	next, _ := state.Update(keyRunes("k"))
	require.Contains(t, next.(Model).View(), "No contracts yet.")
}

func TestRunRequiresTerminal(t *testing.T) {
	t.Parallel()

	err := Run(Options{Client: newFakeClient(), IsTTY: func() bool { return false }})
	require.ErrorIs(t, err, ErrNotTTY)
}

func signedIn(t *testing.T, client *fakeClient) Model {
	t.Helper()

	model := NewModel(Options{Client: client})
	model.usernameInput.SetValue("admin")
	model.passwordInput.SetValue(client.password)
	updated, cmd := model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	next, loadCmd := updated.(Model).Update(cmd())
	require.NotNil(t, loadCmd)
	final, _ := next.(Model).Update(loadCmd())
	return final.(Model)
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

type fakeClient struct {
	password  string
	listings  []Listing
	customers []Customer
	contracts []Contract
	balances  map[int64]Balance
	listErr   error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		password: "admin123",
		listings: []Listing{
			{ID: 2, Code: "P-002", Title: "Sea view flat", Type: "apartment", City: "Durres", Price: "95000", Status: "available", ImageCount: 3},
			{ID: 1, Code: "P-001", Title: "Garden house", Type: "house", City: "Tirana", Price: "180000", Status: "sold", Agent: "Arben Hoxha"},
		},
		customers: []Customer{{ID: 1, Name: "Ayse Yilmaz", Phone: "555-0101"}},
		contracts: []Contract{
			{ID: 1, Number: "C-2024-001", Type: "sale", Property: "P-001", Customer: "Ayse Yilmaz", Amount: "100000", Status: "active"},
		},
		balances: map[int64]Balance{1: {Paid: "15000.25", Remaining: "84999.75", Payments: 2}},
	}
}

func (f *fakeClient) Login(_ context.Context, _ string, password string) (string, error) {
	if password != f.password {
		return "", errors.New("invalid credentials")
	}
	return "Administrator", nil
}

func (f *fakeClient) ListProperties(context.Context) ([]Listing, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]Listing(nil), f.listings...), nil
}

func (f *fakeClient) ListCustomers(context.Context) ([]Customer, error) {
	return append([]Customer(nil), f.customers...), nil
}

func (f *fakeClient) ListContracts(context.Context) ([]Contract, error) {
	return append([]Contract(nil), f.contracts...), nil
}

func (f *fakeClient) ContractBalance(_ context.Context, contractID int64) (Balance, error) {
	return f.balances[contractID], nil
}
