package api

import "html/template"

// Admin pages are rendered with html/template for its contextual
// auto-escaping; flash text ends up inside HTML.

var loginPage = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8">
    <title>Login</title>
</head>
<body>
    {{if .Flash}}<p><i>{{.Flash}}</i></p>{{end}}
    <form action="/login" method="post">
        <label>Username
            <input type="text" placeholder="Enter Username" name="username">
        </label>
        <label>Password
            <input type="password" placeholder="Enter Password" name="password">
        </label>
        <button type="submit">Login</button>
    </form>
</body>
</html>`))

var newsletterPage = template.Must(template.New("newsletters").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8">
    <title>Publish Newsletter Issue</title>
</head>
<body>
    {{if .Flash}}<p><i>{{.Flash}}</i></p>{{end}}
    <form action="/admin/newsletters" method="post">
        <label>Title
            <input type="text" placeholder="Enter the issue title" name="title">
        </label>
        <label>Plain text content
            <textarea placeholder="Enter the content in plain text" name="text"></textarea>
        </label>
        <label>HTML content
            <textarea placeholder="Enter the content in HTML format" name="html"></textarea>
        </label>
        <input hidden type="text" name="idempotency_key" value="{{.IdempotencyKey}}">
        <button type="submit">Publish</button>
    </form>
    <form action="/admin/logout" method="post">
        <button type="submit">Logout</button>
    </form>
</body>
</html>`))

type pageData struct {
	Flash          string
	IdempotencyKey string
}
