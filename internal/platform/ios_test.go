package platform

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeSymbols(syncResult *string, log *[]string) *Symbols {
	return &Symbols{
		InitializeUnityObject: func(object, method string) {
			*log = append(*log, "init:"+object+"."+method)
		},
		InitializeClass: func(className string) {
			*log = append(*log, "class:"+className)
		},
		OnRequestSync: func(domain, data, extra string) *string {
			*log = append(*log, "sync:"+domain)
			return syncResult
		},
		OnRequestAsync: func(domain, data, extra string) {
			*log = append(*log, "async:"+domain)
		},
	}
}

func TestIOSAdapter_Calls(t *testing.T) {
	var log []string
	res := "ads" + "${gpm_communicator}" + "ok"
	a := NewIOSAdapter(func() (*Symbols, error) { return fakeSymbols(&res, &log), nil })

	require.NoError(t, a.Initialize(Endpoint{Object: "CORE_TYPE", Method: "OnAsyncEvent"}))
	require.NoError(t, a.InitializeClass("Plugin"))
	got, err := a.CallSync("ads", "", "")
	require.NoError(t, err)
	require.NoError(t, a.CallAsync("ads", "", ""))

	assert.Equal(t, res, got)
	assert.Equal(t, []string{"init:CORE_TYPE.OnAsyncEvent", "class:Plugin", "sync:ads", "async:ads"}, log)
	assert.Equal(t, KindIOS, a.Kind())
}

func TestIOSAdapter_NilPointerIsEmpty(t *testing.T) {
	var log []string
	a := NewIOSAdapter(func() (*Symbols, error) { return fakeSymbols(nil, &log), nil })

	got, err := a.CallSync("ads", "", "")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestIOSAdapter_MissingSymbol(t *testing.T) {
	var log []string
	syms := fakeSymbols(nil, &log)
	syms.OnRequestAsync = nil
	a := NewIOSAdapter(func() (*Symbols, error) { return syms, nil })

	err := a.CallAsync("ads", "", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "onRequestAsync")
}

func TestIOSAdapter_LoaderError(t *testing.T) {
	a := NewIOSAdapter(func() (*Symbols, error) { return nil, errors.New("dlsym failed") })

	_, err := a.CallSync("ads", "", "")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestIOSAdapter_PanicBecomesError(t *testing.T) {
	var log []string
	syms := fakeSymbols(nil, &log)
	syms.OnRequestSync = func(string, string, string) *string { panic("EXC_BAD_ACCESS") }
	a := NewIOSAdapter(func() (*Symbols, error) { return syms, nil })

	_, err := a.CallSync("ads", "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EXC_BAD_ACCESS")
}
