package callback

import "html/template"

// codePage is shown after the provider redirects back. It echoes the code so the
// user can paste it into the terminal if the automatic handoff does not arrive.
var codePage = template.Must(template.New("code").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>docgpt - Authorization code received</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            display: flex;
            justify-content: center;
            align-items: center;
            min-height: 100vh;
            margin: 0;
            background: #f3f4f6;
        }
        .container {
            text-align: center;
            background: white;
            padding: 2rem 2.5rem;
            border-radius: 12px;
            box-shadow: 0 10px 25px rgba(0,0,0,0.1);
            max-width: 520px;
        }
        input {
            font-family: monospace;
            font-size: 1rem;
            padding: 0.5rem;
            width: 16rem;
        }
        button {
            margin-left: 0.5rem;
            padding: 0.5rem 1rem;
            font-size: 1rem;
            cursor: pointer;
        }
        .hint { color: #6b7280; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Authorization code received</h1>
        <p>Authorization code: <input type="text" value="{{.Code}}" id="authCode" readonly><button id="copyButton" type="button">Copy</button></p>
        <p class="hint">docgpt should continue automatically. If it asks for the code, copy it and paste it in the terminal.</p>
    </div>
    <script>
        document.getElementById("copyButton").addEventListener("click", function () {
            var field = document.getElementById("authCode");
            field.select();
            if (navigator.clipboard) {
                navigator.clipboard.writeText(field.value);
            } else {
                document.execCommand("copy");
            }
            this.textContent = "Copied";
        });
    </script>
</body>
</html>
`))

var errorPage = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>docgpt - Authorization failed</title>
</head>
<body style="font-family: sans-serif; text-align: center; padding-top: 4rem;">
    <h1>Authorization failed</h1>
    <p>{{.Message}}</p>
    <p>Return to the terminal and try again.</p>
</body>
</html>
`))
