package spaces

import (
	"fmt"
	"io"
	"net"
	"os"
	"runtime"
	"sort"
	"text/tabwriter"

	"github.com/gin-gonic/gin"
)

// Version 构建时通过 -ldflags "-X github.com/tokmz/spaces.Version=..." 覆盖
var Version = "dev"

const logo = `
 ___ _ __   __ _  ___ ___  ___
/ __| '_ \ / _' |/ __/ _ \/ __|
\__ \ |_) | (_| | (_|  __/\__ \
|___/ .__/ \__,_|\___\___||___/
    |_|
`

// printBanner 打印 logo、监听地址与路由表
func (e *Engine) printBanner(addr string) {
	writeBanner(os.Stdout, addr, e.engine.Routes(), e.config.Mode)
}

func writeBanner(out io.Writer, addr string, routes gin.RoutesInfo, mode string) {
	fmt.Fprint(out, logo)
	fmt.Fprintf(out, "version %s | %s | %s/%s | mode %s\n", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH, mode)
	fmt.Fprintf(out, "listening on %s\n\n", browsable(addr))
	if len(routes) == 0 {
		return
	}

	sorted := append(gin.RoutesInfo(nil), routes...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Path != sorted[j].Path {
			return sorted[i].Path < sorted[j].Path
		}
		return sorted[i].Method < sorted[j].Method
	})
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, r := range sorted {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", r.Method, r.Path, r.Handler)
	}
	_ = tw.Flush()
	fmt.Fprintln(out)
}

// browsable 把通配监听地址换成可直接访问的 URL
func browsable(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// silenceGin 关闭 gin 自带的调试输出，访问日志由 Logger 中间件负责
func silenceGin() {
	gin.DefaultWriter = io.Discard
	gin.DefaultErrorWriter = io.Discard
}
