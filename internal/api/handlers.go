package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pivogram/pivogram/internal/server"
	"github.com/pivogram/pivogram/internal/store"
	"github.com/pivogram/pivogram/internal/types"
	"gorm.io/gorm"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 20
	minPasswordLen = 6
	maxPasswordLen = 100

	maxUploadBytes = 10 << 20
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type UploadResponse struct {
	Url string `json:"url"`
}

func (s *PivoGramApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func validCredentials(username, password string) bool {
	if len(username) < minUsernameLen || len(username) > maxUsernameLen {
		return false
	}
	if len(password) < minPasswordLen || len(password) > maxPasswordLen {
		return false
	}
	return true
}

func (s *PivoGramApp) createAccount(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if !validCredentials(req.Username, req.Password) {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	pwdHash, err := hashPassword(req.Password)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	role := types.RoleUser
	if req.Username == "admin" {
		role = types.RoleAdmin
	}

	newUser, err := s.repo.CreateAccount(store.CreateAccountParams{
		Username:     req.Username,
		PasswordHash: pwdHash,
		Role:         role,
	})
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, store.ErrAccountExists) {
			errResp = NewConflictError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, types.Identity{
		Id:        newUser.Id,
		Username:  newUser.Username,
		Role:      newUser.Role,
		CreatedAt: newUser.CreatedAt,
		UpdatedAt: newUser.UpdatedAt,
	})
}

func (s *PivoGramApp) login(w http.ResponseWriter, r *http.Request) {
	var lr LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&lr); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if lr.Username == "" || lr.Password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbUser, err := s.repo.GetAccountByUsername(lr.Username)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, gorm.ErrRecordNotFound) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !verifyPassword(dbUser.PasswordHash, lr.Password) {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	token, err := s.createJwtForSession(dbUser.Id, defaultJwtExpiration)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	http.SetCookie(w, createJwtCookie(token, defaultJwtExpiration))

	s.writeJson(w, http.StatusOK, types.Identity{
		Id:        dbUser.Id,
		Username:  dbUser.Username,
		Role:      dbUser.Role,
		AvatarUrl: dbUser.AvatarUrl,
		CreatedAt: dbUser.CreatedAt,
		UpdatedAt: dbUser.UpdatedAt,
	})
}

func (s *PivoGramApp) session(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.repo.GetAccountById(userId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, gorm.ErrRecordNotFound) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, types.Identity{
		Id:        user.Id,
		Username:  user.Username,
		Role:      user.Role,
		AvatarUrl: user.AvatarUrl,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	})
}

func (s *PivoGramApp) logout(w http.ResponseWriter, _ *http.Request) {
	// instruct browser to delete cookie by overwriting it with an expired token
	http.SetCookie(w, createJwtCookie("", time.Duration(time.Unix(0, 0).Unix())))
	w.WriteHeader(http.StatusNoContent)
}

func (s *PivoGramApp) healthcheck(w http.ResponseWriter, _ *http.Request) {
	s.writeJson(w, http.StatusOK, map[string]string{"status": "ok"})
}

// saveUpload writes a multipart image upload under the data directory with a
// random filename and returns its public URL path.
func (s *PivoGramApp) saveUpload(file multipart.File, header *multipart.FileHeader) (string, error) {
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !slices.Contains([]string{".png", ".jpg", ".jpeg", ".gif", ".webp"}, ext) {
		return "", NewBadRequestError()
	}

	name := uuid.NewString() + ext
	dst, err := os.Create(filepath.Join(s.dataDir, name))
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		return "", err
	}

	return "/uploads/" + name, nil
}

func (s *PivoGramApp) uploadAvatar(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.repo.GetAccountById(userId)
	if err != nil {
		errResp := NewNotFoundError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("avatar")
	if err != nil {
		errResp := NewRequestEntityTooLargeError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	defer file.Close()

	url, err := s.saveUpload(file, header)
	if err != nil {
		var errResp *ApiError
		if !errors.As(err, &errResp) {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.repo.UpdateAvatar(user.Username, url); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.cs.UpdateAvatar(r.Context(), user.Username, url); err != nil {
		s.log.Println("propagate avatar update:", err)
	}

	s.stats.Incr("NumUploads")
	s.writeJson(w, http.StatusOK, UploadResponse{Url: url})
}

func (s *PivoGramApp) uploadPhoto(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.repo.GetAccountById(userId)
	if err != nil {
		errResp := NewNotFoundError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("photo")
	if err != nil {
		errResp := NewRequestEntityTooLargeError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	defer file.Close()

	roomId := r.FormValue("roomId")
	if roomId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	url, err := s.saveUpload(file, header)
	if err != nil {
		var errResp *ApiError
		if !errors.As(err, &errResp) {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	params := server.PhotoMessageParams{
		Username:        user.Username,
		AvatarUrl:       user.AvatarUrl,
		Role:            user.Role,
		RoomId:          roomId,
		ImageUrl:        url,
		ReplyToUsername: r.FormValue("replyToUsername"),
		ReplyToSnippet:  r.FormValue("replyToSnippet"),
	}
	if replyTo := r.FormValue("replyToId"); replyTo != "" {
		if id, err := strconv.ParseInt(replyTo, 10, 64); err == nil {
			params.ReplyToId = id
		}
	}

	if err := s.cs.PostPhotoMessage(r.Context(), params); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.stats.Incr("NumUploads")
	s.writeJson(w, http.StatusOK, UploadResponse{Url: url})
}

// invite stashes the room id in a cookie and sends the visitor to the app;
// the room is joined once the websocket session authenticates.
func (s *PivoGramApp) invite(w http.ResponseWriter, r *http.Request) {
	roomId := r.PathValue("roomId")
	if roomId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     inviteCookieKey,
		Value:    roomId,
		Path:     "/",
		Expires:  time.Now().Add(time.Hour),
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
}

func (s *PivoGramApp) serveWs(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.repo.GetAccountById(userId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, gorm.ErrRecordNotFound) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	connId, err := s.generateConnId()
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var inviteRoom string
	if c, err := r.Cookie(inviteCookieKey); err == nil {
		inviteRoom = c.Value
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(connId, types.Identity{
		Id:        user.Id,
		Username:  user.Username,
		Role:      user.Role,
		AvatarUrl: user.AvatarUrl,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}, inviteRoom, conn, s.cs, s.log)

	s.cs.RegisterClient(client)
	go client.Write()
	go client.Read()
}
