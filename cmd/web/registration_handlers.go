package main

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/qomolangma-jp/alumni-komatsu-liff/internal/handlers"
	"github.com/qomolangma-jp/alumni-komatsu-liff/internal/liff"
	mw "github.com/qomolangma-jp/alumni-komatsu-liff/internal/middleware"
	"github.com/qomolangma-jp/alumni-komatsu-liff/internal/observability"
	"github.com/qomolangma-jp/alumni-komatsu-liff/internal/registration"
)

// RegistrationPageHandler mounts a fresh registration view and renders the page shell.
// The page script then reports the LIFF session to /liff/bootstrap.
func (a *app) RegistrationPageHandler(w http.ResponseWriter, r *http.Request) {
	lang := mw.Lang(r)
	sess := mw.GetSession(r)

	inst := a.controller.NewInstance(a.newViewID())
	if previous := sess.ViewID(); previous != "" {
		a.views.Delete(previous)
	}
	a.views.Put(inst)
	sess.SetViewID(inst.ID)

	csrf := mw.CSRFToken(r)
	vm := handlers.PageData{
		Title:        a.bundle.T(lang, "app.title"),
		Lang:         lang,
		Path:         r.URL.Path,
		LIFFID:       a.cfg.LIFF.ID,
		CSRFToken:    csrf,
		Dev:          a.cfg.Server.Dev,
		Registration: buildRegistrationView(a.bundle, a.notices, lang, inst, inst.Snapshot(), csrf),
	}
	a.renderPage(w, r, vm)
}

// LIFFBootstrapHandler runs the mount sequence with what the browser learned from liff.init
// and returns the resolved view.
func (a *app) LIFFBootstrapHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		a.renderError(w, r, http.StatusBadRequest)
		return
	}
	inst, ok := a.currentInstance(r)
	if !ok {
		a.renderExpired(w, r)
		return
	}

	provider := liff.NewClientSession(reportFromForm(r.PostForm), a.verifier)
	st := a.controller.Bootstrap(r.Context(), inst, provider)
	setLIFFTrigger(w, r, provider.Commands())
	a.renderTemplate(w, r, "frag_registration", a.registrationView(r, inst, st))
}

// RegistrationInputHandler applies a single field change and returns the birth date preview.
func (a *app) RegistrationInputHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		a.renderError(w, r, http.StatusBadRequest)
		return
	}
	inst, ok := a.currentInstance(r)
	if !ok {
		a.renderExpired(w, r)
		return
	}

	st := applyForm(inst, r.PostForm)
	view := a.registrationView(r, inst, st)
	a.renderTemplate(w, r, "frag_birth_preview", view.Birth)
}

// RegisterSubmitHandler applies the posted form and submits it.
func (a *app) RegisterSubmitHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		a.renderError(w, r, http.StatusBadRequest)
		return
	}
	inst, ok := a.currentInstance(r)
	if !ok {
		a.renderExpired(w, r)
		return
	}

	applyForm(inst, r.PostForm)
	provider := liff.DetachedSession()
	st := a.controller.Submit(r.Context(), inst, provider)
	commands := provider.Commands()
	// Requests that lost the race to a successful submit still close the view.
	if st.Submitted && a.cfg.Registration.CloseOnSuccess {
		commands = append(commands, liff.CommandClose)
	}
	setLIFFTrigger(w, r, commands)
	a.renderTemplate(w, r, "frag_registration", a.registrationView(r, inst, st))
}

func (a *app) currentInstance(r *http.Request) (*registration.Instance, bool) {
	sess := mw.GetSession(r)
	if sess == nil || mw.SessionExpired(r.Context()) {
		return nil, false
	}
	return a.views.Get(r.Context(), sess.ViewID())
}

func (a *app) registrationView(r *http.Request, inst *registration.Instance, st registration.State) RegistrationView {
	return buildRegistrationView(a.bundle, a.notices, mw.Lang(r), inst, st, mw.CSRFToken(r))
}

// renderExpired answers requests whose view is gone with an advisory in place of the form.
func (a *app) renderExpired(w http.ResponseWriter, r *http.Request) {
	observability.FromContext(r.Context()).Info("registration view expired")
	st := registration.NewState(a.controller.Schema())
	st.Halted = true
	st.Status = &registration.StatusMessage{Key: registration.MsgSessionExpired, Kind: registration.StatusError}
	a.renderTemplate(w, r, "frag_registration", a.registrationView(r, nil, st))
}

// applyForm dispatches every recognised field present in form.
func applyForm(inst *registration.Instance, form url.Values) registration.State {
	st := inst.Snapshot()
	for _, name := range st.Schema.Fields() {
		if values, ok := form[name]; ok && st.Schema.Accepts(name) {
			st = inst.Dispatch(registration.FieldChanged{Name: name, Value: values[0]})
		}
	}
	parts := map[string]registration.BirthPart{
		birthYearField:  registration.BirthYear,
		birthMonthField: registration.BirthMonth,
		birthDayField:   registration.BirthDay,
	}
	for _, field := range []string{birthYearField, birthMonthField, birthDayField} {
		if values, ok := form[field]; ok {
			st = inst.Dispatch(registration.BirthChanged{Part: parts[field], Value: values[0]})
		}
	}
	return st
}

func reportFromForm(form url.Values) liff.Report {
	return liff.Report{
		InitError:   form.Get("init_error"),
		InClient:    formBool(form, "in_client"),
		LoggedIn:    formBool(form, "logged_in"),
		IDToken:     form.Get("id_token"),
		AccessToken: form.Get("access_token"),
	}
}

func formBool(form url.Values, key string) bool {
	v, err := strconv.ParseBool(form.Get(key))
	return err == nil && v
}

// setLIFFTrigger hands queued LIFF commands to the page script as htmx events.
func setLIFFTrigger(w http.ResponseWriter, r *http.Request, commands []liff.Command) {
	if len(commands) == 0 {
		return
	}
	payload := make(map[string]struct{}, len(commands))
	for _, cmd := range commands {
		payload[string(cmd)] = struct{}{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		observability.FromContext(r.Context()).Error("encode HX-Trigger", zap.Error(err))
		return
	}
	w.Header().Set("HX-Trigger", string(raw))
}
