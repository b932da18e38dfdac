// Intentionally vulnerable web application for end-to-end testing of wavs.
// It is backed by real MySQL and PostgreSQL databases so database error
// messages and SLEEP/pg_sleep delays are genuine.
// DO NOT deploy this in any production environment.
package main

import (
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

var mysqlDB *sql.DB
var postgresDB *sql.DB

// docRoot holds the files served by view.php.
const docRoot = "/srv/docs"

func main() {
	var err error

	mysqlDB, err = openDB("mysql", os.Getenv("MYSQL_DSN"))
	if err != nil {
		log.Fatalf("MySQL: %v", err)
	}
	postgresDB, err = openDB("postgres", os.Getenv("POSTGRES_DSN"))
	if err != nil {
		log.Fatalf("PostgreSQL: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/{$}", indexHandler)
	mux.HandleFunc("/index.php", indexHandler)
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "User-agent: *\nDisallow: /backup/\n")
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "OK")
	})

	// MySQL: error-based and time-based injection, stored XSS
	mux.HandleFunc("/user.php", userHandler)
	mux.HandleFunc("/comments.php", commentsHandler)

	// PostgreSQL: injection in a quoted LIKE and a login form
	mux.HandleFunc("/search.php", searchHandler)
	mux.HandleFunc("/login.php", loginHandler)

	// Parameterized, must never be flagged
	mux.HandleFunc("/account.php", accountHandler)

	// File inclusion and command injection
	mux.HandleFunc("/view.php", viewHandler)
	mux.HandleFunc("/ping.php", pingHandler)

	mux.HandleFunc("/info.php", func(w http.ResponseWriter, r *http.Request) {
		page(w, "Info", "<p>PHP Version 8.1.2</p><p>System: Linux vulnapp</p>")
	})

	log.Println("Vulnerable test server starting on :8080")
	log.Fatal(http.ListenAndServe(":8080", mux))
}

func openDB(driver, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("no DSN for %s", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	log.Printf("Connected to %s", driver)
	return db, nil
}

func page(w http.ResponseWriter, title, body string) {
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprintf(w, "<html><head><title>%s</title></head><body><h1>%s</h1>%s</body></html>", title, title, body)
}

// dbError writes the raw driver error, the way a misconfigured PHP site does.
func dbError(w http.ResponseWriter, err error) {
	w.WriteHeader(http.StatusInternalServerError)
	page(w, "Database Error", "<p>"+err.Error()+"</p>")
}

func indexHandler(w http.ResponseWriter, r *http.Request) {
	page(w, "Vulnerable Test App", `
<p>WARNING: This is an intentionally vulnerable application for testing only.</p>
<ul>
<li><a href="user.php?id=1">User profile</a> (MySQL)</li>
<li><a href="comments.php">Comments</a> (MySQL)</li>
<li><a href="search.php?q=widget">Search</a> (PostgreSQL)</li>
<li><a href="login.php">Login</a> (PostgreSQL)</li>
<li><a href="account.php?id=1">Account</a> (parameterized)</li>
<li><a href="view.php?file=welcome.txt">Docs</a></li>
<li><a href="ping.php?host=127.0.0.1">Ping</a></li>
</ul>`)
}

// GET /user.php?id=1
func userHandler(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Missing id parameter", 400)
		return
	}

	// VULNERABLE: Direct string concatenation
	query := fmt.Sprintf("SELECT username, email FROM users WHERE id = %s", id)
	log.Printf("[MySQL] Query: %s", query)

	var username, email string
	err := mysqlDB.QueryRow(query).Scan(&username, &email)
	switch {
	case err == sql.ErrNoRows:
		page(w, "User Profile", "<p>No user found.</p>")
	case err != nil:
		dbError(w, err)
	default:
		page(w, "User Profile", fmt.Sprintf("<p>Username: %s</p><p>Email: %s</p>", username, email))
	}
}

// GET  /comments.php              list comments and the form
// POST /comments.php author, body store a comment
func commentsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		// Parameterized insert; the stored text is rendered unescaped below.
		_, err := mysqlDB.Exec("INSERT INTO comments (author, body) VALUES (?, ?)",
			r.FormValue("author"), r.FormValue("body"))
		if err != nil {
			dbError(w, err)
			return
		}
		http.Redirect(w, r, "comments.php", http.StatusSeeOther)
		return
	}

	rows, err := mysqlDB.Query("SELECT author, body FROM comments ORDER BY id DESC LIMIT 50")
	if err != nil {
		dbError(w, err)
		return
	}
	defer rows.Close()

	var b strings.Builder
	b.WriteString("<ul>")
	for rows.Next() {
		var author, body string
		if err := rows.Scan(&author, &body); err != nil {
			continue
		}
		// VULNERABLE: stored content rendered raw
		fmt.Fprintf(&b, "<li><b>%s</b>: %s</li>", author, body)
	}
	b.WriteString(`</ul><form action="comments.php" method="post"><input name="author"><textarea name="body"></textarea><button>Post</button></form>`)
	page(w, "Comments", b.String())
}

// GET /search.php?q=widget
func searchHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")

	// VULNERABLE: String concatenation with quotes
	query := fmt.Sprintf("SELECT name, price FROM products WHERE name LIKE '%%%s%%'", q)
	log.Printf("[PostgreSQL] Query: %s", query)

	rows, err := postgresDB.Query(query)
	if err != nil {
		dbError(w, err)
		return
	}
	defer rows.Close()

	var b strings.Builder
	count := 0
	for rows.Next() {
		var name string
		var price float64
		if err := rows.Scan(&name, &price); err != nil {
			continue
		}
		count++
		fmt.Fprintf(&b, "<p>%s - $%.2f</p>", name, price)
	}
	fmt.Fprintf(&b, "<p>%d results found.</p>", count)
	page(w, "Search", b.String())
}

// GET  /login.php                    the form
// POST /login.php username, password
func loginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		page(w, "Login", `<form method="POST"><input name="username"><input name="password" type="password"><button>Login</button></form>`)
		return
	}

	// VULNERABLE: Direct string concatenation in WHERE
	query := fmt.Sprintf("SELECT username FROM users WHERE username = '%s' AND password = '%s'",
		r.FormValue("username"), r.FormValue("password"))
	log.Printf("[PostgreSQL] Query: %s", query)

	var username string
	err := postgresDB.QueryRow(query).Scan(&username)
	switch {
	case err == sql.ErrNoRows:
		page(w, "Login Failed", "<p>Invalid username or password.</p>")
	case err != nil:
		dbError(w, err)
	default:
		page(w, "Welcome", "<p>Hello "+username+"</p>")
	}
}

// GET /account.php?id=1 (safe)
func accountHandler(w http.ResponseWriter, r *http.Request) {
	var username string
	err := mysqlDB.QueryRow("SELECT username FROM users WHERE id = ?", r.URL.Query().Get("id")).Scan(&username)
	if err != nil {
		page(w, "Account", "<p>No account.</p>")
		return
	}
	page(w, "Account", "<p>"+username+"</p>")
}

// GET /view.php?file=welcome.txt
func viewHandler(w http.ResponseWriter, r *http.Request) {
	// VULNERABLE: user input joined into a filesystem path
	data, err := os.ReadFile(filepath.Join(docRoot, r.URL.Query().Get("file")))
	if err != nil {
		page(w, "Docs", "<p>Document not found.</p>")
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.Write(data)
}

// GET /ping.php?host=127.0.0.1
func pingHandler(w http.ResponseWriter, r *http.Request) {
	// VULNERABLE: input passed to a shell
	out, _ := exec.CommandContext(r.Context(), "sh", "-c", "ping -c 1 -W 1 "+r.URL.Query().Get("host")).CombinedOutput()
	w.Header().Set("Content-Type", "text/plain")
	w.Write(out)
}
