package hostings

import (
	"strings"
	"testing"

	"ccr/dom"

	"github.com/stretchr/testify/require"
)

const testHash = "1f0fc1db8599f87520494ca4f0e3c1b6fabdf997"

func page(t *testing.T, rawURL, markup string) *dom.Document {
	t.Helper()
	doc, err := dom.Parse(rawURL, strings.ReplaceAll(markup, "HASH", testHash))
	require.NoError(t, err)
	return doc
}

const githubPage = `<html><head><title>Merge #7 · git/git@1f0fc1d</title></head><body>
<div data-current-repository="git/git"></div>
<div class="commit full-commit">
  <div class="d-flex"><a id="browse-at-time-link" class="btn flex-self-start" href="/git/git/tree/HASH">Browse files</a></div>
  <p class="commit-title markdown-title">Merge <a href="https://github.com/git/git/pull/7">#7</a> from topic</p>
  <div class="commit-meta"><a class="js-permalink-shortcut" href="/git/git/commit/HASH">permalink</a><svg class="octicon octicon-copy"></svg></div>
</div>
</body></html>`

const gitlabPage = `<html><head><meta property="og:site_name" content="GitLab"></head><body>
<nav><a href="/group/project/-/issues">Issues</a></nav>
<div class="content-wrapper"><main id="content-body">
  <div class="page-content-header"><div class="header-main-content">
    <button class="btn btn-clipboard" data-clipboard-text="HASH"><svg class="s16"></svg></button>
    <span class="d-sm-inline">authored</span> <time datetime="2024-05-06T07:08:09Z"></time>
    <span>Committed by</span> <time datetime="2024-06-01T00:00:00Z"></time>
  </div></div>
  <div class="commit-box"><h3 class="commit-title">Fix #3 in parser</h3><pre class="commit-description">Body text.</pre></div>
</main></div>
</body></html>`

const bitbucketCloudPage = `<html><head><title>ws/repo 1f0fc1d</title><meta name="bb-view-name" content="commit"></head><body>
<div data-aui-version="9.0"></div>
<div id="bitbucket-navigation"><a href="/ws/repo/">repo</a></div>
<div class="css-tbegx5 e1tw8lnx2"><a class="css-1leee2m" href="/ws/repo/commits/HASH/">1f0fc1d</a>
<button aria-label="copy commit hash"><svg class="copy"></svg></button></div>
<div class="css-1qa9ryl e1tw8lnx1">header</div><div><p>Merged in topic (pull request #7)</p></div>
</body></html>`

const bitbucketServerPage = `<html><head></head><body>
<div data-aui-version="8.0"></div>
<div data-projectkey="PRJ" data-project-key="PRJ" data-repository-slug="repo"></div>
<div class="commit-badge-oneline"><div class="commit-details">
  <a class="commitid" data-commitid="HASH" data-commit-message="ABC-1: Merge pull request #12 in PRJ/repo from topic to master&#10;&#10;* commit 'abc'">1f0fc1d</a>
  <time datetime="2023-05-06T07:08:09+0000">6 May 2023</time>
</div></div>
<div class="plugin-section-primary"><a class="commit-issues-trigger" data-issue-keys="ABC-1,ABC-2"></a></div>
<div class="plugin-section-secondary"></div>
</body></html>`

const gitwebPage = `<html><head><meta name="generator" content="gitweb/2.20.1 git/2.39.2"></head><body>
<div class="page_nav">summary | log | commit<br/>(parent: abc) | patch</div>
<div class="title_text"><table class="object_header">
<tr><td>author</td><td>Ann</td></tr>
<tr><td></td><td><span class="datetime">Tue, 2 Jan 2024 23:30:00 -0200</span></td></tr>
<tr><td>commit</td><td class="sha1">HASH</td></tr>
<tr><td>tree</td><td class="sha1">0000000000000000000000000000000000000000</td></tr>
</table></div>
<div class="page_body">Fix the frobnicator<br/><br/>Longer body.</div>
</body></html>`

const cgitPage = `<html><head></head><body><div id="cgit"><div class="content">
<table class="commit-info">
<tr><th>author</th><td>Ann</td><td class="right">2024-01-02 10:11:12 +0100</td></tr>
<tr><th>committer</th><td>Bob</td><td class="right">2024-01-03 10:11:12 +0100</td></tr>
<tr><th>commit</th><td colspan="2" class="oid"><a href="/git/commit/?id=HASH">HASH</a> (<a href="/git/patch/?id=HASH">patch</a>)</td></tr>
</table>
<div class="commit-subject">Short<span class="decoration"><a href="/refs">v1.0</a></span></div>
<div class="commit-msg">more text

Body.</div>
</div></div></body></html>`

const gitilesPage = `<html><head></head><body><div class="Site"><div class="Site-content"><div class="Container">
<div class="Metadata"><table>
<tr><th>commit</th><td>HASH</td><td>[<a href="/log">log</a>]</td></tr>
<tr><th>author</th><td>Ann</td><td>Tue Jan 02 10:11:12 2024 +0100</td></tr>
</table></div>
<pre class="MetadataMessage">Fix it

Body</pre>
</div></div></div>
<div class="Footer"><span class="Footer-poweredBy">Powered by <a href="https://gerrit.googlesource.com/gitiles/">Gitiles</a></span></div>
</body></html>`

const giteaPage = `<html><head><meta name="keywords" content="go,git,self-hosted,gitea"></head><body>
<div class="header-wrapper"><div class="navbar"><a href="/owner/repo/issues">Issues</a></div></div>
<div class="commit-header">
  <h3><span class="commit-summary">Fix #12 crash</span></h3>
  <div><a class="ui primary tiny button" href="/owner/repo/src/commit/HASH">Browse Source</a></div>
</div>
<div class="commit-body"><pre>Body text</pre></div>
<div id="authored-time"><relative-time datetime="2024-03-04T05:06:07Z"></relative-time></div>
<svg class="svg octicon-copy"></svg>
</body></html>`

const gogsPage = `<html><head><meta name="author" content="Gogs"></head><body>
<div class="ui tabular menu navbar"><a href="/user/repo/issues">Issues</a></div>
<div class="ui top attached info clearing segment">
  <a class="ui floated right blue tiny button" href="/user/repo/src/HASH">Browse Source</a>
  <div class="commit-message">Add feature</div>
</div>
<span id="authored-time"><span data-content="Mon, 02 Jan 2006 15:04:05 UTC">2 days ago</span></span>
</body></html>`

const sourcehutPage = `<html><head></head><body><div class="container"><div class="row">
<div class="col-md-10"><div class="event-list"><div class="event">
  <a id="log-HASH" href="#log-HASH"><span title="2023-07-08 09:10:11 UTC">1 year ago</span></a>
  <pre class="commit">Fix typo

Body</pre>
</div></div></div>
<div class="col-md-2"><div class="mb-3"></div></div>
</div></div></body></html>`

const phorgePage = `<html><head></head><body>
<div class="phui-header-view"><div class="phui-header-subheader"><span class="phui-tag-view"><span class="phui-tag-core"><a href="/rMWHASH">rMW1f0f</a></span></span></div></div>
<ul class="phabricator-action-list-view"></ul>
<dl><dt class="phui-property-list-key">Provenance</dt><dd><span class="phui-status-item-note">Authored on Sep 30 2021, 16:41</span></dd></dl>
<div class="diffusion-commit-message">Fix thing</div>
</body></html>`
