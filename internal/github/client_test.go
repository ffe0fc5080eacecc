package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locktivity/epack-collector-template-security/internal/tristate"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server, NewClientWithGraphQL(server.Client(), server.URL, server.URL+"/graphql")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		want      Outcome
		existence tristate.State
	}{
		{"nil is success", nil, OutcomeSuccess, tristate.True},
		{"404 is not found", &APIError{StatusCode: http.StatusNotFound}, OutcomeNotFound, tristate.False},
		{"403 is forbidden", &APIError{StatusCode: http.StatusForbidden}, OutcomeForbidden, tristate.Unknown},
		{"500 is error", &APIError{StatusCode: http.StatusInternalServerError}, OutcomeError, tristate.Unknown},
		{"transport error", &APIError{Err: errors.New("connection reset")}, OutcomeError, tristate.Unknown},
		{"wrapped not found", fmt.Errorf("fetch: %w", &APIError{StatusCode: http.StatusNotFound}), OutcomeNotFound, tristate.False},
		{"plain error", errors.New("boom"), OutcomeError, tristate.Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
			assert.Equal(t, tt.existence, Existence(tt.err))
		})
	}
}

func TestAPIErrorMessage(t *testing.T) {
	err := &APIError{Method: "GET", Endpoint: "repos/o/r", StatusCode: 404, Message: "Not Found"}
	assert.Equal(t, "GET repos/o/r: 404 Not Found", err.Error())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrForbidden)
}

func TestStatusFlag(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		want    tristate.State
		wantErr bool
	}{
		{"204 enabled", http.StatusNoContent, tristate.True, false},
		{"200 enabled", http.StatusOK, tristate.True, false},
		{"404 disabled", http.StatusNotFound, tristate.False, false},
		{"403 unknown", http.StatusForbidden, tristate.Unknown, false},
		{"500 classified error", http.StatusInternalServerError, tristate.Unknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/repos/owner/repo/vulnerability-alerts", r.URL.Path)
				w.WriteHeader(tt.status)
			})

			got, err := client.VulnerabilityAlerts(context.Background(), "owner", "repo")
			assert.Equal(t, tt.want, got)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, OutcomeError, Classify(err))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestAutomatedSecurityFixes(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/owner/repo/automated-security-fixes", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{"enabled": true, "paused": false})
	})

	got, err := client.AutomatedSecurityFixes(context.Background(), "owner", "repo")
	require.NoError(t, err)
	assert.Equal(t, tristate.True, got)
}

func TestGetRepository(t *testing.T) {
	tests := []struct {
		name     string
		response string
		check    func(t *testing.T, d *RepositoryDetails)
	}{
		{
			name: "all features reported",
			response: `{
				"full_name": "acme/svc",
				"html_url": "https://github.com/acme/svc",
				"created_at": "2024-05-01T10:00:00Z",
				"default_branch": "main",
				"template_repository": {"full_name": "acme/template"},
				"security_and_analysis": {
					"advanced_security": {"status": "enabled"},
					"secret_scanning": {"status": "enabled"},
					"secret_scanning_push_protection": {"status": "disabled"},
					"dependabot_security_updates": {"status": "enabled"}
				}
			}`,
			check: func(t *testing.T, d *RepositoryDetails) {
				assert.Equal(t, "acme/svc", d.FullName)
				assert.Equal(t, "acme/template", d.TemplateFullName)
				assert.Equal(t, "main", d.DefaultBranch)
				assert.Equal(t, 2024, d.CreatedAt.Year())
				require.NotNil(t, d.SecurityAndAnalysis)
				assert.Equal(t, StatusEnabled, d.SecurityAndAnalysis.AdvancedSecurity.Status)
				assert.Equal(t, "disabled", d.SecurityAndAnalysis.SecretScanningPushProtection.Status)
			},
		},
		{
			name: "partial block",
			response: `{
				"full_name": "acme/svc",
				"security_and_analysis": {"secret_scanning": {"status": "enabled"}}
			}`,
			check: func(t *testing.T, d *RepositoryDetails) {
				require.NotNil(t, d.SecurityAndAnalysis)
				assert.Nil(t, d.SecurityAndAnalysis.AdvancedSecurity)
				assert.Nil(t, d.SecurityAndAnalysis.DependabotSecurityUpdates)
				require.NotNil(t, d.SecurityAndAnalysis.SecretScanning)
				assert.Equal(t, StatusEnabled, d.SecurityAndAnalysis.SecretScanning.Status)
			},
		},
		{
			name:     "block absent",
			response: `{"full_name": "someone/svc", "default_branch": "trunk"}`,
			check: func(t *testing.T, d *RepositoryDetails) {
				assert.Nil(t, d.SecurityAndAnalysis)
				assert.Empty(t, d.TemplateFullName)
				assert.Equal(t, "trunk", d.DefaultBranch)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/repos/acme/svc", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.response))
			})

			details, err := client.GetRepository(context.Background(), "acme", "svc")
			require.NoError(t, err)
			tt.check(t, details)
		})
	}
}

func TestGetContent(t *testing.T) {
	body := "* @acme\n"
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/acme/svc/contents/.github/CODEOWNERS":
			assert.Equal(t, "main", r.URL.Query().Get("ref"))
			writeJSON(w, http.StatusOK, map[string]any{
				"type":     "file",
				"path":     ".github/CODEOWNERS",
				"sha":      "abc123",
				"encoding": "base64",
				"content":  base64.StdEncoding.EncodeToString([]byte(body)),
			})
		case "/repos/acme/svc/contents/CODEOWNERS":
			writeJSON(w, http.StatusNotFound, map[string]any{"message": "Not Found"})
		case "/repos/acme/svc/contents/docs/CODEOWNERS":
			writeJSON(w, http.StatusForbidden, map[string]any{"message": "Resource not accessible by integration"})
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
			w.WriteHeader(http.StatusTeapot)
		}
	})

	content, err := client.GetContent(context.Background(), "acme", "svc", "main", ".github/CODEOWNERS")
	require.NoError(t, err)
	assert.Equal(t, "abc123", content.SHA)
	assert.Equal(t, ContentTypeFile, content.Type)
	assert.Equal(t, body, content.Text)

	_, err = client.GetContent(context.Background(), "acme", "svc", "main", "CODEOWNERS")
	assert.Equal(t, OutcomeNotFound, Classify(err))

	_, err = client.GetContent(context.Background(), "acme", "svc", "main", "docs/CODEOWNERS")
	assert.Equal(t, OutcomeForbidden, Classify(err))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Resource not accessible by integration", apiErr.Message)
}

func TestListDirectory(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/svc/contents/.github/workflows", r.URL.Path)
		writeJSON(w, http.StatusOK, []map[string]any{
			{"type": "file", "path": ".github/workflows/ci.yml", "sha": "1"},
			{"type": "dir", "path": ".github/workflows/shared", "sha": "2"},
		})
	})

	entries, err := client.ListDirectory(context.Background(), "acme", "svc", "main", ".github/workflows")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ".github/workflows/ci.yml", entries[0].Path)
	assert.Equal(t, ContentTypeDir, entries[1].Type)
}

func TestGetBranchProtection(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/acme/svc/branches/main/protection":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{
				"required_status_checks": {"strict": true, "contexts": ["ci/build"]},
				"required_pull_request_reviews": {"required_approving_review_count": 2, "require_code_owner_reviews": true},
				"enforce_admins": {"enabled": true},
				"required_linear_history": {"enabled": false},
				"allow_force_pushes": {"enabled": false},
				"allow_deletions": {"enabled": false},
				"required_conversation_resolution": {"enabled": true}
			}`))
		case "/repos/acme/svc/branches/develop/protection":
			writeJSON(w, http.StatusNotFound, map[string]any{"message": "Branch not protected"})
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	})

	p, err := client.GetBranchProtection(context.Background(), "acme", "svc", "main")
	require.NoError(t, err)
	require.NotNil(t, p.RequiredStatusChecks)
	assert.True(t, p.RequiredStatusChecks.Strict)
	assert.Equal(t, []string{"ci/build"}, p.RequiredStatusChecks.Contexts)
	assert.Equal(t, 2, p.RequiredPullRequestReviews.RequiredApprovingReviewCount)
	assert.True(t, p.EnforceAdmins.Enabled)
	assert.True(t, p.RequiredConversationResolution.Enabled)

	_, err = client.GetBranchProtection(context.Background(), "acme", "svc", "develop")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHeaders(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, AcceptHeader, r.Header.Get("Accept"))
		assert.Equal(t, APIVersion, r.Header.Get("X-GitHub-Api-Version"))
		assert.Equal(t, UserAgent, r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, client.GetBranch(context.Background(), "acme", "svc", "main"))
}

func TestListOrganizationRepositories_Pagination(t *testing.T) {
	callCount := 0
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		callCount++
		body, _ := io.ReadAll(r.Body)
		bodyStr := string(body)

		for _, field := range []string{"organization", "templateRepository", "nameWithOwner", "defaultBranchRef", "createdAt"} {
			assert.Contains(t, bodyStr, field)
		}

		if callCount == 1 {
			writeJSON(w, http.StatusOK, map[string]any{
				"data": map[string]any{
					"organization": map[string]any{
						"repositories": map[string]any{
							"nodes": []map[string]any{
								{
									"nameWithOwner":      "acme/svc",
									"url":                "https://github.com/acme/svc",
									"createdAt":          "2024-05-01T10:00:00Z",
									"defaultBranchRef":   map[string]any{"name": "main"},
									"templateRepository": map[string]any{"nameWithOwner": "acme/template"},
								},
								{
									"nameWithOwner":      "acme/empty",
									"url":                "https://github.com/acme/empty",
									"createdAt":          "2024-04-01T10:00:00Z",
									"defaultBranchRef":   nil,
									"templateRepository": nil,
								},
							},
							"pageInfo": map[string]any{"hasNextPage": true, "endCursor": "cursor123"},
						},
					},
				},
			})
			return
		}

		assert.Contains(t, bodyStr, "cursor123")
		writeJSON(w, http.StatusOK, map[string]any{
			"data": map[string]any{
				"organization": map[string]any{
					"repositories": map[string]any{
						"nodes": []map[string]any{
							{"nameWithOwner": "acme/old", "url": "https://github.com/acme/old", "createdAt": "2020-01-01T00:00:00Z"},
						},
						"pageInfo": map[string]any{"hasNextPage": false, "endCursor": ""},
					},
				},
			},
		})
	})

	repos, err := client.ListOrganizationRepositories(context.Background(), "acme", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, callCount)
	require.Len(t, repos, 3)

	assert.Equal(t, "acme/svc", repos[0].NameWithOwner)
	require.NotNil(t, repos[0].TemplateRepository)
	assert.Equal(t, "acme/template", repos[0].TemplateRepository.NameWithOwner)
	assert.Equal(t, "main", repos[0].DefaultBranchRef.Name)
	assert.Nil(t, repos[1].DefaultBranchRef)
	assert.Nil(t, repos[1].TemplateRepository)
}

func TestListOrganizationRepositories_PageCeiling(t *testing.T) {
	callCount := 0
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		callCount++
		writeJSON(w, http.StatusOK, map[string]any{
			"data": map[string]any{
				"organization": map[string]any{
					"repositories": map[string]any{
						"nodes":    []map[string]any{{"nameWithOwner": fmt.Sprintf("acme/r%d", callCount)}},
						"pageInfo": map[string]any{"hasNextPage": true, "endCursor": fmt.Sprintf("c%d", callCount)},
					},
				},
			},
		})
	})

	repos, err := client.ListOrganizationRepositories(context.Background(), "acme", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, callCount)
	assert.Len(t, repos, 1)
}

func TestListUserRepositories_GraphQLError(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"data":   map[string]any{"user": nil},
			"errors": []map[string]any{{"type": "NOT_FOUND", "message": "Could not resolve to a User with the login of 'acme'."}},
		})
	})

	_, err := client.ListUserRepositories(context.Background(), "acme", 0)
	require.Error(t, err)
	assert.Equal(t, OutcomeError, Classify(err))
}

func TestListOwnerRepositories_FallsBackToUserEndpoint(t *testing.T) {
	var paths []string
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path+"?page="+r.URL.Query().Get("page"))
		switch r.URL.Path {
		case "/orgs/someone/repos":
			writeJSON(w, http.StatusNotFound, map[string]any{"message": "Not Found"})
		case "/users/someone/repos":
			assert.Equal(t, "created", r.URL.Query().Get("sort"))
			assert.Equal(t, "desc", r.URL.Query().Get("direction"))
			assert.Equal(t, "100", r.URL.Query().Get("per_page"))
			var page []map[string]any
			count := PerPage
			if r.URL.Query().Get("page") == "2" {
				count = 3
			}
			for i := 0; i < count; i++ {
				page = append(page, map[string]any{"full_name": fmt.Sprintf("someone/r%d", i), "default_branch": "main"})
			}
			writeJSON(w, http.StatusOK, page)
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	})

	repos, err := client.ListOwnerRepositories(context.Background(), "someone", 0)
	require.NoError(t, err)
	assert.Len(t, repos, PerPage+3)
	assert.Equal(t, []string{"/orgs/someone/repos?page=1", "/users/someone/repos?page=1", "/users/someone/repos?page=2"}, paths)
}

func TestListOwnerRepositories_ForbiddenIsNotRetried(t *testing.T) {
	calls := 0
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeJSON(w, http.StatusForbidden, map[string]any{"message": "Forbidden"})
	})

	_, err := client.ListOwnerRepositories(context.Background(), "acme", 0)
	assert.Equal(t, OutcomeForbidden, Classify(err))
	assert.Equal(t, 1, calls)
}

func TestRefOperations(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/repos/acme/svc/git/ref/heads/main":
			writeJSON(w, http.StatusOK, map[string]any{"ref": "refs/heads/main", "object": map[string]any{"sha": "tip123", "type": "commit"}})
		case r.Method == http.MethodPost && r.URL.Path == "/repos/acme/svc/git/refs":
			assert.JSONEq(t, `{"ref":"refs/heads/security/template-baseline","sha":"tip123"}`, string(body))
			writeJSON(w, http.StatusCreated, map[string]any{"ref": "refs/heads/security/template-baseline"})
		case r.Method == http.MethodPatch && r.URL.Path == "/repos/acme/svc/git/refs/heads/security/template-baseline":
			assert.JSONEq(t, `{"sha":"tip123","force":true}`, string(body))
			writeJSON(w, http.StatusOK, map[string]any{})
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusTeapot)
		}
	})

	ctx := context.Background()
	sha, err := client.GetRef(ctx, "acme", "svc", "main")
	require.NoError(t, err)
	assert.Equal(t, "tip123", sha)
	require.NoError(t, client.CreateRef(ctx, "acme", "svc", "security/template-baseline", sha))
	require.NoError(t, client.UpdateRef(ctx, "acme", "svc", "security/template-baseline", sha, true))
}

func TestPutFile(t *testing.T) {
	tests := []struct {
		name    string
		sha     string
		wantSHA bool
	}{
		{"creation omits sha", "", false},
		{"revision carries sha", "old456", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPut, r.Method)
				assert.Equal(t, "/repos/acme/svc/contents/.github/dependabot.yml", r.URL.Path)

				var payload map[string]any
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
				assert.Equal(t, "chore(security): add dependabot config", payload["message"])
				assert.Equal(t, "security/template-baseline", payload["branch"])
				assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("version: 2\n")), payload["content"])
				if tt.wantSHA {
					assert.Equal(t, tt.sha, payload["sha"])
				} else {
					assert.NotContains(t, payload, "sha")
				}
				writeJSON(w, http.StatusCreated, map[string]any{})
			})

			err := client.PutFile(context.Background(), "acme", "svc", FileUpdate{
				Path:    ".github/dependabot.yml",
				Branch:  "security/template-baseline",
				Message: "chore(security): add dependabot config",
				Content: []byte("version: 2\n"),
				SHA:     tt.sha,
			})
			require.NoError(t, err)
		})
	}
}

func TestPullRequests(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "open", r.URL.Query().Get("state"))
			assert.Equal(t, "main", r.URL.Query().Get("base"))
			writeJSON(w, http.StatusOK, []map[string]any{
				{"number": 7, "html_url": "https://github.com/acme/svc/pull/7", "head": map[string]any{"ref": "feature"}, "base": map[string]any{"ref": "main"}},
			})
		case http.MethodPost:
			var payload map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, "security/template-baseline", payload["head"])
			assert.True(t, strings.Contains(payload["body"].(string), "CODEOWNERS"))
			writeJSON(w, http.StatusCreated, map[string]any{"number": 8, "html_url": "https://github.com/acme/svc/pull/8", "head": map[string]any{"ref": "security/template-baseline"}})
		}
	})

	ctx := context.Background()
	prs, err := client.ListOpenPullRequests(ctx, "acme", "svc", "main")
	require.NoError(t, err)
	require.Len(t, prs, 1)
	assert.Equal(t, "feature", prs[0].HeadRef)
	assert.Equal(t, "main", prs[0].BaseRef)

	pr, err := client.CreatePullRequest(ctx, "acme", "svc", NewPullRequest{
		Title: "chore(security): baseline repo security files",
		Head:  "security/template-baseline",
		Base:  "main",
		Body:  "- Add/update `.github/CODEOWNERS`",
	})
	require.NoError(t, err)
	assert.Equal(t, 8, pr.Number)
	assert.Equal(t, "https://github.com/acme/svc/pull/8", pr.URL)
}

func TestQueryWithoutGraphQLClient(t *testing.T) {
	client := NewClientWithHTTP(http.DefaultClient, "http://127.0.0.1:0")
	_, err := client.ListOrganizationRepositories(context.Background(), "acme", 0)
	assert.Equal(t, OutcomeError, Classify(err))
}
