package main

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/aquilax/treeboard/auth"
	"github.com/aquilax/treeboard/database"
	"github.com/aquilax/treeboard/log"
	"github.com/aquilax/treeboard/objectstore"
	"github.com/aquilax/treeboard/qrcode"
	"github.com/gorilla/mux"
)

// authMessage turns auth errors into the sentence shown to the user. It
// reports false for errors that are not the user's fault.
func authMessage(err error) (string, bool) {
	for _, known := range []error{
		auth.ErrInvalidCredentials,
		auth.ErrAccountExists,
		auth.ErrSignUpDisabled,
		auth.ErrInvalidEmail,
		auth.ErrWeakPassword,
	} {
		if errors.Is(err, known) {
			msg := known.Error()
			return strings.ToUpper(msg[:1]) + msg[1:], true
		}
	}
	return "Something went wrong, please try again", false
}

func (l *TreeBoard) authHandler(w http.ResponseWriter, r *http.Request) error {
	signUp := l.config.Auth.AllowSignUp && r.FormValue("mode") != "signin"
	email := strings.TrimSpace(r.FormValue("email"))

	if r.Method == http.MethodPost {
		password := r.FormValue("password")
		if signUp {
			if err := l.auth.SignUp(r.Context(), email, password); err != nil {
				msg, known := authMessage(err)
				if !known {
					log.Error.Printf("sign up: %v", err)
				}
				l.flash(w, r, auth.FlashError, msg)
			} else {
				l.flash(w, r, auth.FlashSuccess, "Account created successfully! You can now sign in.")
				http.Redirect(w, r, auth.SignInPath+"?mode=signin", http.StatusSeeOther)
				return nil
			}
		} else {
			if err := l.auth.SignIn(w, r, email, password); err != nil {
				msg, known := authMessage(err)
				if !known {
					log.Error.Printf("sign in: %v", err)
				}
				l.flash(w, r, auth.FlashError, msg)
			} else {
				l.flash(w, r, auth.FlashSuccess, "Logged in successfully")
				http.Redirect(w, r, "/admin", http.StatusSeeOther)
				return nil
			}
		}
	} else if _, ok := l.auth.Current(r); ok {
		http.Redirect(w, r, "/admin", http.StatusFound)
		return nil
	}

	s := l.newSession(w, r)
	s.AddPath("/", s.Lang("Home"))
	if signUp {
		s.Set("Subtitle", s.Lang("Create Admin Account"))
	} else {
		s.Set("Subtitle", s.Lang("Admin Login"))
	}
	s.AddPath("", s.td["Subtitle"].(string))
	s.Set("SignUp", signUp)
	s.Set("AllowSignUp", l.config.Auth.AllowSignUp)
	s.Set("Email", email)
	return s.render(w, l.templates, "auth.html")
}

func (l *TreeBoard) signOutHandler(w http.ResponseWriter, r *http.Request) error {
	if err := l.auth.SignOut(w, r); err != nil {
		return err
	}
	l.flash(w, r, auth.FlashSuccess, "You have been signed out successfully")
	http.Redirect(w, r, auth.SignInPath, http.StatusSeeOther)
	return nil
}

func (l *TreeBoard) adminHandler(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	perPage := l.config.Site.PerPage
	total, err := l.db.GetTotalTrees(ctx)
	if err != nil {
		return err
	}
	page := clampPage(getPageNumber(r.URL.Query().Get("page")), perPage, total)
	trees, err := l.db.GetTrees(ctx, perPage, page*perPage)
	if err != nil {
		return err
	}
	email, _ := l.auth.Current(r)

	s := l.newSession(w, r)
	s.AddPath("/", s.Lang("Home"))
	s.AddPath("", s.Lang("Tree Management"))
	s.Set("Subtitle", s.Lang("Tree Management"))
	s.Set("Email", email)
	s.Set("Trees", trees)
	s.Set("Pagination", Pagination(PaginationConfig{
		page:  page + 1,
		ipp:   perPage,
		total: total,
		url:   "/admin",
		param: "page",
	}))
	return s.render(w, l.templates, "admin.html")
}

func (l *TreeBoard) addTreeHandler(w http.ResponseWriter, r *http.Request) error {
	ln := l.language()
	var form TreeForm
	var verrs ValidationErrors

	if r.Method == http.MethodPost {
		if l.photos.MaxSize > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, l.photos.MaxSize+1<<20)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil && err != http.ErrNotMultipart {
			return HTTPError{Err: err, Message: ln.Lang("Failed to upload photo"), Code: http.StatusBadRequest}
		}
		form = treeFormFromRequest(r)
		t, errs := form.Validate(ln)
		verrs = errs
		if len(verrs) == 0 {
			url, err := l.uploadPhoto(r)
			if err != nil {
				verrs = append(verrs, ln.Lang("Failed to upload photo"))
			} else {
				t.PhotoURL = url
			}
		}
		if len(verrs) == 0 {
			if _, err := l.db.AddTree(r.Context(), t); err != nil {
				return HTTPError{Err: err, Message: err.Error(), Code: http.StatusInternalServerError}
			}
			l.flash(w, r, auth.FlashSuccess, "Tree added successfully!")
			http.Redirect(w, r, "/admin", http.StatusSeeOther)
			return nil
		}
	}

	s := l.newSession(w, r)
	s.AddPath("/", s.Lang("Home"))
	s.AddPath("/admin", s.Lang("Tree Management"))
	s.AddPath("", s.Lang("Add New Tree"))
	s.Set("Subtitle", s.Lang("Add New Tree"))
	s.Set("Errors", verrs)
	s.Set("Form", form)
	return s.render(w, l.templates, "form.html")
}

// uploadPhoto stores the optional photo field and returns its public URL,
// or "" when no photo was sent.
func (l *TreeBoard) uploadPhoto(r *http.Request) (string, error) {
	if r.MultipartForm == nil {
		return "", nil
	}
	file, header, err := r.FormFile("photo")
	if err == http.ErrMissingFile {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer file.Close()
	if header.Size == 0 {
		return "", nil
	}
	url, err := l.photos.Put(r.Context(), header.Filename, file)
	if err != nil {
		if err != objectstore.ErrTooLarge {
			log.Error.Printf("photo upload: %v", err)
		}
		return "", err
	}
	return url, nil
}

func (l *TreeBoard) deleteTreeHandler(w http.ResponseWriter, r *http.Request) error {
	id := mux.Vars(r)["id"]
	err := l.db.DeleteTree(r.Context(), id)
	switch {
	case err == nil:
		l.flash(w, r, auth.FlashSuccess, "Tree deleted successfully")
	case errors.Is(err, database.ErrNotFound):
		l.flash(w, r, auth.FlashError, "Tree not found")
	default:
		return err
	}
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
	return nil
}

// qrHandler serves the printable QR code pointing at the public tree page.
func (l *TreeBoard) qrHandler(w http.ResponseWriter, r *http.Request) error {
	t, err := l.getTree(r)
	if err != nil {
		return err
	}
	png, err := qrcode.Render(treeURL(l.baseURL(r), t.ID), l.qr)
	if err != nil {
		log.Error.Printf("qr code for tree %s: %v", t.ID, err)
		l.flash(w, r, auth.FlashError, "Failed to generate QR code")
		http.Redirect(w, r, "/admin", http.StatusSeeOther)
		return nil
	}
	l.metrics.qrRendered.Inc()
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.Header().Set("Content-Disposition", `attachment; filename="`+qrFilename(t.Name)+`"`)
	_, err = w.Write(png)
	return err
}
