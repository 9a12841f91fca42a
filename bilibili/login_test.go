package bilibili

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	assert_ "github.com/stretchr/testify/assert"
	require_ "github.com/stretchr/testify/require"

	"github.com/bilifetch/bilifetch"
)

func TestRequestChallenge(t *testing.T) {
	assert := assert_.New(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("/x/passport-login/web/qrcode/generate", r.URL.Path)
		fmt.Fprint(w, `{"code":0,"data":{"url":"https://passport.example/scan?k=abc","qrcode_key":"abc"}}`)
	}))
	defer server.Close()

	c := testClient(server)
	challenge, err := c.RequestChallenge(context.Background())
	assert.NoError(err)
	assert.Equal("abc", challenge.ID)
	assert.Equal("https://passport.example/scan?k=abc", challenge.ScannableContent)
}

func TestRequestChallengeMissingFields(t *testing.T) {
	assert := assert_.New(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":0,"data":{}}`)
	}))
	defer server.Close()

	_, err := testClient(server).RequestChallenge(context.Background())
	assert.Error(err)
}

func TestPollChallengeStates(t *testing.T) {
	assert := assert_.New(t)
	for _, tc := range []struct {
		code int
		want bilifetch.ChallengeState
	}{
		{86101, bilifetch.ChallengePending},
		{86090, bilifetch.ChallengeScanned},
		{86038, bilifetch.ChallengeExpired},
	} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal("abc", r.URL.Query().Get("qrcode_key"))
			fmt.Fprintf(w, `{"code":0,"data":{"code":%d}}`, tc.code)
		}))
		status, err := testClient(server).PollChallenge(context.Background(), "abc")
		assert.NoError(err, "code %d", tc.code)
		assert.Equal(tc.want, status.State, "code %d", tc.code)
		server.Close()
	}
}

func TestPollChallengeConfirmedCredentials(t *testing.T) {
	assert := assert_.New(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "SESSDATA", Value: "tok"})
		http.SetCookie(w, &http.Cookie{Name: "bili_jct", Value: "csrf"})
		http.SetCookie(w, &http.Cookie{Name: "DedeUserID", Value: "42"})
		fmt.Fprint(w, `{"code":0,"data":{"code":0}}`)
	}))
	defer server.Close()

	status, err := testClient(server).PollChallenge(context.Background(), "abc")
	require_.NoError(t, err)
	assert.Equal(bilifetch.ChallengeConfirmed, status.State)
	assert.Equal("tok", status.Credentials.SessionToken)
	assert.Equal("csrf", status.Credentials.CryptoToken)
	assert.Equal("42", status.Credentials.UserID)
}

func TestPollChallengeConfirmedWithoutCookies(t *testing.T) {
	assert := assert_.New(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":0,"data":{"code":0}}`)
	}))
	defer server.Close()

	_, err := testClient(server).PollChallenge(context.Background(), "abc")
	assert.Error(err)
}
