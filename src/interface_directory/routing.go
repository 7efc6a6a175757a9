package interface_directory

// netRouting derives WAN liveness from the kernel routing table and the
// status cached by each WAN plugin.
type netRouting struct {
	dir      *ConfigDirectory
	hasRoute RouteChecker
}

// CurrentWanLivenessView marks an enabled WAN ready when it carries a default
// route and its last check was not negative.
func (r *netRouting) CurrentWanLivenessView() *WanView {
	view := &WanView{WANs: make(map[string]any)}
	for _, iface := range r.dir.WANs() {
		if !iface.Enabled {
			continue
		}
		status := WanStatus{}
		if p := r.dir.Plugin(iface.Name); p != nil {
			if cached := p.GetWanStatus(); cached != nil {
				status = *cached
			}
		}
		status.Ready = r.hasRoute(iface.Name) && (status.TS == 0 || status.DNS || status.HTTP != "")
		if status.Ready {
			view.Connected = true
		}
		view.WANs[iface.Name] = &status
	}
	return view
}
